package bus

import "time"

// Action names accepted from chat clients.
const (
	ActionLogin     = "login"
	ActionText      = "text"
	ActionField     = "field"
	ActionSubmit    = "submit"
	ActionSelect    = "select"
	ActionIncrement = "increment"
	ActionDecrement = "decrement"
	ActionConfirm   = "confirm"
	ActionCancel    = "cancel"
	ActionNewChat   = "new_chat"
	ActionRetailer  = "retailer"
)

// Event types sent back to chat clients.
const (
	EventMessage = "message"
	EventClear   = "clear"
	EventAuth    = "auth"
	EventState   = "state"
	EventError   = "error"
)

type InboundMessage struct {
	ChatID   string            `json:"chat_id"`
	SenderID string            `json:"sender_id,omitempty"`
	Action   string            `json:"action"`
	Content  string            `json:"content,omitempty"`
	Name     string            `json:"name,omitempty"`
	Value    string            `json:"value,omitempty"`
	Position int               `json:"position,omitempty"`
	Size     string            `json:"size,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Email    string            `json:"email,omitempty"`
	Password string            `json:"password,omitempty"`
}

// Message mirrors one transcript entry on the wire.
type Message struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}

// State summarizes the chat after an action.
type State struct {
	LoggedIn bool   `json:"logged_in"`
	Retailer string `json:"retailer,omitempty"`
	Step     string `json:"step"`
	Pending  string `json:"pending,omitempty"`
	Loading  bool   `json:"loading"`
	CartSize int    `json:"cart_size"`
}

type OutboundMessage struct {
	ChatID  string   `json:"chat_id"`
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	State   *State   `json:"state,omitempty"`
	Token   string   `json:"token,omitempty"`
	Email   string   `json:"email,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type MessageHandler func(OutboundMessage) error

// Khwaaish - conversational shopping front end
// License: MIT
//
// Copyright (c) 2026 Khwaaish contributors

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"khwaaish/pkg/auth"
	"khwaaish/pkg/automation"
	"khwaaish/pkg/cart"
	"khwaaish/pkg/chatlog"
	"khwaaish/pkg/config"
	"khwaaish/pkg/flow"
	"khwaaish/pkg/logger"
	"khwaaish/pkg/retailers"
)

var (
	ErrNotLoggedIn  = errors.New("chat: not logged in")
	ErrNoSuchItem   = errors.New("chat: no such item")
	ErrNoRetailer   = errors.New("chat: no retailer selected")
	ErrFlowFinished = errors.New("chat: flow finished")

	// ErrRetailerDisabled is returned for flows switched off in config.
	ErrRetailerDisabled = errors.New("chat: retailer disabled")
)

const (
	msgLoginFirst = ":lock: Please log in first."
	msgFinished   = ":tada: This order is complete. Type /new to start a new chat."
	msgCartEmpty  = "Your cart is empty."
	msgCleared    = ":cart: Cart cleared."
)

// Factory builds a controller for a retailer flow around a shared log and cart.
type Factory func(retailer string, log *chatlog.Log, sel *cart.Selection) (*flow.Controller, error)

// NewFactory builds controllers from the retailer tables using cfg's
// per-retailer API settings. Flows with retailers.<name>.enabled=false are
// refused.
func NewFactory(cfg *config.Config) Factory {
	return func(retailer string, log *chatlog.Log, sel *cart.Selection) (*flow.Controller, error) {
		def, err := retailers.Definition(retailer)
		if err != nil {
			return nil, err
		}
		if !cfg.RetailerEnabled(retailer) {
			return nil, fmt.Errorf("%w: %s", ErrRetailerDisabled, retailer)
		}
		callers, err := retailers.Callers(cfg, def)
		if err != nil {
			return nil, err
		}
		ctrl, err := flow.New(def, callers, log, sel)
		if err != nil {
			return nil, err
		}
		ctrl.SetSearchLimit(cfg.Chat.SearchLimit)
		return ctrl, nil
	}
}

// Engine turns user input for one chat into flow operations. The log is the
// only output: surfaces subscribe to it and render what gets pushed.
type Engine struct {
	chatID  string
	log     *chatlog.Log
	cart    *cart.Selection
	factory Factory

	mu        sync.Mutex
	choices   []string
	onLoading func(bool)
	ctrl      *flow.Controller
	retailer  string
	state     auth.State
	awaiting  bool
}

func NewEngine(chatID string, log *chatlog.Log, factory Factory) *Engine {
	if log == nil {
		log = chatlog.NewLog()
	}
	return &Engine{
		chatID:  chatID,
		log:     log,
		cart:    cart.NewSelection(),
		factory: factory,
	}
}

// OnLoading registers fn with the current flow and every flow started later.
func (e *Engine) OnLoading(fn func(loading bool)) {
	e.mu.Lock()
	e.onLoading = fn
	ctrl := e.ctrl
	e.mu.Unlock()
	if ctrl != nil {
		ctrl.OnLoading(fn)
	}
}

// SetChoices narrows the retailers offered to the user. By default every
// known flow is listed.
func (e *Engine) SetChoices(names []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.choices = append([]string(nil), names...)
}

// Choices returns the retailers offered to the user.
func (e *Engine) Choices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.choices == nil {
		return retailers.Names()
	}
	return append([]string(nil), e.choices...)
}

func (e *Engine) ChatID() string {
	return e.chatID
}

func (e *Engine) Log() *chatlog.Log {
	return e.log
}

func (e *Engine) Cart() *cart.Selection {
	return e.cart
}

func (e *Engine) Auth() auth.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) SetAuth(state auth.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

func (e *Engine) Retailer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retailer
}

// Controller returns the active flow, or nil before a retailer is chosen.
func (e *Engine) Controller() *flow.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl
}

func (e *Engine) controller() (*flow.Controller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Authenticated() {
		return nil, ErrNotLoggedIn
	}
	if e.ctrl == nil {
		return nil, ErrNoRetailer
	}
	return e.ctrl, nil
}

// SelectRetailer starts a new chat with the named retailer flow.
func (e *Engine) SelectRetailer(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))

	e.mu.Lock()
	if !e.state.Authenticated() {
		e.mu.Unlock()
		e.log.PushSystem(msgLoginFirst)
		return ErrNotLoggedIn
	}
	old := e.ctrl
	e.mu.Unlock()

	if old != nil {
		old.Reset()
	}
	e.log.Clear()
	e.cart.Clear()
	ctrl, err := e.factory(name, e.log, e.cart)
	if err != nil {
		e.log.PushSystem(fmt.Sprintf(":cross: %v. Available: %s", err, strings.Join(e.Choices(), ", ")))
		return err
	}

	e.mu.Lock()
	e.ctrl = ctrl
	e.retailer = name
	hook := e.onLoading
	e.mu.Unlock()
	if hook != nil {
		ctrl.OnLoading(hook)
	}

	logger.InfoCF("chat", "Retailer selected", map[string]interface{}{
		logger.FieldChatID:   e.chatID,
		logger.FieldRetailer: name,
	})
	return ctrl.Start()
}

// NewChat clears the transcript and restarts the current retailer flow.
func (e *Engine) NewChat() error {
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()

	e.log.Clear()
	if ctrl == nil {
		e.cart.Clear()
		return nil
	}
	ctrl.Reset()
	return ctrl.Start()
}

// Text handles free-form input: it answers the pending field of the open
// step, or starts a new search from the cart.
func (e *Engine) Text(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	ctrl, err := e.controller()
	if err != nil {
		e.log.PushUser(text)
		return e.explain(err)
	}

	step := ctrl.Step()
	if step == nil {
		e.log.PushUser(text)
		e.log.PushSystem(msgFinished)
		return ErrFlowFinished
	}

	field, pending := ctrl.Pending()
	if step.Kind == flow.KindCart && !(pending && e.awaitingFields()) {
		if step.Back == "" {
			e.log.PushUser(text)
			e.log.PushSystem(":cart: Use /add <number> to pick items, then /confirm.")
			return nil
		}
		if err := ctrl.Back(); err != nil {
			e.log.PushUser(text)
			return err
		}
		field, pending = ctrl.Pending()
	}

	if !pending {
		e.log.PushUser(text)
		return e.submit(ctx, ctrl)
	}
	return e.answer(ctx, ctrl, field, text)
}

func (e *Engine) answer(ctx context.Context, ctrl *flow.Controller, field flow.Field, text string) error {
	shown := text
	if Sensitive(field.Name) {
		shown = strings.Repeat("•", len(text))
	}
	e.log.PushUser(shown)

	value := text
	if field.Optional && text == "-" {
		value = ""
	}
	return e.setAndMaybeSubmit(ctx, ctrl, field.Name, value)
}

// Sensitive reports fields whose answers are masked in the transcript.
func Sensitive(field string) bool {
	return field == "upi_id" || field == "otp" || strings.HasSuffix(field, "_otp")
}

// Field sets a named field directly, as the gateway's form actions do.
func (e *Engine) Field(ctx context.Context, name, value string) error {
	ctrl, err := e.controller()
	if err != nil {
		return e.explain(err)
	}
	return ctrl.SetField(name, value)
}

func (e *Engine) setAndMaybeSubmit(ctx context.Context, ctrl *flow.Controller, name, value string) error {
	if err := ctrl.SetField(name, value); err != nil {
		return err
	}
	if next, ok := ctrl.Pending(); ok {
		e.log.PushSystem(next.Ask())
		return nil
	}
	return e.submit(ctx, ctrl)
}

// submit re-asks for a field the controller rejected. On a cart step the
// answer must reach that step rather than start a new search, so awaiting is
// set.
func (e *Engine) submit(ctx context.Context, ctrl *flow.Controller) error {
	err := ctrl.Submit(ctx)
	if errors.Is(err, flow.ErrValidation) {
		if step := ctrl.Step(); step != nil && step.Kind == flow.KindCart {
			e.setAwaiting(true)
		}
		if next, ok := ctrl.Pending(); ok {
			e.log.PushSystem(next.Ask())
		}
		return err
	}
	e.setAwaiting(false)
	return err
}

// Submit submits the open step as it stands.
func (e *Engine) Submit(ctx context.Context) error {
	ctrl, err := e.controller()
	if err != nil {
		return e.explain(err)
	}
	return e.submit(ctx, ctrl)
}

// Confirm places the cart. Missing checkout fields are asked for first.
func (e *Engine) Confirm(ctx context.Context) error {
	ctrl, err := e.controller()
	if err != nil {
		return e.explain(err)
	}
	step := ctrl.Step()
	if step == nil {
		e.log.PushSystem(msgFinished)
		return ErrFlowFinished
	}
	if step.Kind == flow.KindCart && !e.cart.Empty() {
		if next, ok := ctrl.Pending(); ok {
			e.setAwaiting(true)
			e.log.PushSystem(next.Ask())
			return nil
		}
	}
	return e.submit(ctx, ctrl)
}

// Select adds one of the listed product at a 1-based position.
func (e *Engine) Select(position int, size string) error {
	p, err := e.product(position)
	if err != nil {
		return err
	}
	qty := e.cart.Increment(p)
	if size != "" {
		e.cart.SetSize(p, strings.ToUpper(size))
	}
	e.log.PushSystem(fmt.Sprintf(":cart: *%s* x%d", p.Name, qty))
	return nil
}

func (e *Engine) Increment(position int) error {
	return e.Select(position, "")
}

func (e *Engine) Decrement(position int) error {
	p, err := e.product(position)
	if err != nil {
		return err
	}
	qty := e.cart.Decrement(p)
	if qty == 0 {
		e.log.PushSystem(fmt.Sprintf(":cart: Removed *%s*", p.Name))
	} else {
		e.log.PushSystem(fmt.Sprintf(":cart: *%s* x%d", p.Name, qty))
	}
	return nil
}

func (e *Engine) product(position int) (automation.Product, error) {
	ctrl, err := e.controller()
	if err != nil {
		return automation.Product{}, e.explain(err)
	}
	products := ctrl.Products()
	if position < 1 || position > len(products) {
		e.log.PushSystem(fmt.Sprintf(":warning: Pick a number between 1 and %d.", len(products)))
		return automation.Product{}, ErrNoSuchItem
	}
	return products[position-1], nil
}

// Cancel empties the cart without leaving the step.
func (e *Engine) Cancel() {
	e.cart.Clear()
	e.setAwaiting(false)
	e.log.PushSystem(msgCleared)
}

// CartSummary pushes the current selection.
func (e *Engine) CartSummary() {
	selected := e.cart.Selected()
	if len(selected) == 0 {
		e.log.PushSystem(msgCartEmpty)
		return
	}
	var b strings.Builder
	b.WriteString(":cart: *Your cart*")
	for _, entry := range selected {
		fmt.Fprintf(&b, "\n%s x%d", entry.Product.Name, entry.Quantity)
		if entry.Product.Price != "" {
			fmt.Fprintf(&b, " (₹%s)", strings.TrimPrefix(entry.Product.Price, "₹"))
		}
		if entry.Size != "" {
			fmt.Fprintf(&b, " size %s", entry.Size)
		}
		if entry.Product.Source != "" {
			fmt.Fprintf(&b, " from %s", entry.Product.Source)
		}
	}
	e.log.PushSystem(b.String())
}

func (e *Engine) awaitingFields() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.awaiting
}

func (e *Engine) setAwaiting(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.awaiting = v
}

func (e *Engine) explain(err error) error {
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		e.log.PushSystem(msgLoginFirst)
	case errors.Is(err, ErrNoRetailer):
		e.log.PushSystem("Pick a retailer first with /retailer <name>. Available: " + strings.Join(e.Choices(), ", "))
	}
	return err
}

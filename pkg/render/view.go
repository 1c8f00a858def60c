package render

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"khwaaish/pkg/automation"
)

type Kind string

const (
	KindText           Kind = "text"
	KindProductList    Kind = "product_list"
	KindHotelList      Kind = "hotel_list"
	KindBookingSuccess Kind = "booking_success"
	KindOrderSuccess   Kind = "order_success"
	KindSwiggyCheckout Kind = "swiggy_checkout"
	KindConfirmation   Kind = "confirmation"
)

// View is the presentation shape of one message. It carries no selection
// state; presenters look that up from the cart when drawing.
type View struct {
	Kind     Kind
	Segments []Segment
	Title    string
	Message  string
	Source   string
	Products []automation.Product
	Details  []Detail
}

// Detail is a labelled value on success views, kept in payload order.
type Detail struct {
	Label string
	Value string
}

var structuredKinds = map[string]Kind{
	string(KindProductList):    KindProductList,
	string(KindHotelList):      KindHotelList,
	string(KindBookingSuccess): KindBookingSuccess,
	string(KindOrderSuccess):   KindOrderSuccess,
	string(KindSwiggyCheckout): KindSwiggyCheckout,
}

// Render maps stored message content to a view. It never fails: content that
// is not a recognized payload renders as formatted text.
func Render(content string) View {
	trimmed := strings.TrimSpace(content)
	if strings.EqualFold(trimmed, "success") {
		return confirmationView("")
	}
	if !gjson.Valid(trimmed) {
		return textView(content)
	}
	root := gjson.Parse(trimmed)

	if root.Type == gjson.String {
		if strings.EqualFold(root.String(), "success") {
			return confirmationView("")
		}
		return textView(root.String())
	}
	if !root.IsObject() {
		return textView(content)
	}

	if kind, ok := structuredKinds[root.Get("type").String()]; ok {
		return structuredView(kind, trimmed, root)
	}
	if !root.Get("type").Exists() && strings.EqualFold(root.Get("status").String(), "success") {
		return confirmationView(root.Get("message").String())
	}
	return textView(content)
}

func structuredView(kind Kind, raw string, root gjson.Result) View {
	v := View{
		Kind:    kind,
		Title:   root.Get("title").String(),
		Message: root.Get("message").String(),
		Source:  root.Get("source").String(),
	}
	switch kind {
	case KindProductList, KindHotelList:
		v.Products = automation.NewResponse(200, []byte(raw)).Products("")
		for i := range v.Products {
			if v.Products[i].Source == "" {
				v.Products[i].Source = v.Source
			}
		}
	default:
		v.Details = details(root)
	}
	if v.Title == "" {
		v.Title = defaultTitles[kind]
	}
	return v
}

var defaultTitles = map[Kind]string{
	KindProductList:    "Products",
	KindHotelList:      "Hotels",
	KindBookingSuccess: "Booking confirmed",
	KindOrderSuccess:   "Order placed",
	KindSwiggyCheckout: "Checkout",
}

var detailOrder = []struct{ path, label string }{
	{"order_id", "Order ID"},
	{"booking_id", "Booking ID"},
	{"hotel_name", "Hotel"},
	{"restaurant", "Restaurant"},
	{"retailer", "Retailer"},
	{"check_in", "Check-in"},
	{"check_out", "Check-out"},
	{"items", "Items"},
	{"total", "Total"},
	{"amount", "Amount"},
	{"upi_id", "UPI"},
	{"status", "Status"},
}

func details(root gjson.Result) []Detail {
	var out []Detail
	for _, d := range detailOrder {
		val := root.Get(d.path)
		if !val.Exists() || val.Type == gjson.Null {
			continue
		}
		text := val.String()
		if val.IsArray() {
			text = joinItems(val)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, Detail{Label: d.label, Value: text})
	}
	return out
}

func joinItems(arr gjson.Result) string {
	var parts []string
	arr.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			name := item.Get("name").String()
			if name == "" {
				name = item.Get("product_name").String()
			}
			if q := item.Get("quantity"); q.Exists() {
				name += " x" + q.String()
			}
			parts = append(parts, name)
		} else {
			parts = append(parts, item.String())
		}
		return true
	})
	return strings.Join(parts, ", ")
}

func confirmationView(message string) View {
	if message == "" {
		message = "Your request was completed successfully."
	}
	return View{Kind: KindConfirmation, Title: "Success", Message: message}
}

func textView(content string) View {
	return View{Kind: KindText, Segments: Format(content)}
}

// Payload builds the stored content for a structured message.
func Payload(kind Kind, fields map[string]interface{}) string {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["type"] = string(kind)
	data, err := json.Marshal(out)
	if err != nil {
		return string(kind)
	}
	return string(data)
}

// ProductList builds a product_list (or hotel_list) payload.
func ProductList(kind Kind, source, message string, products []automation.Product) string {
	key := "products"
	if kind == KindHotelList {
		key = "hotels"
	}
	return Payload(kind, map[string]interface{}{
		"source":  source,
		"message": message,
		key:       products,
	})
}

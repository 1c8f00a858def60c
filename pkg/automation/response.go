package automation

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	sessionIDPaths = []string{"session_id", "sessionId", "data.session_id", "session.id"}
	productPaths   = []string{"products", "results", "items", "hotels", "data.products", "data.results", "data.items", "data.hotels", "data"}
	messagePaths   = []string{"message", "detail", "error", "msg"}

	productNamePaths  = []string{"name", "title", "product_name", "hotel_name", "item_name"}
	productPricePaths = []string{"price", "final_price", "selling_price", "offer_price", "price_per_night", "mrp"}
	productImagePaths = []string{"image", "image_url", "img", "thumbnail", "images.0"}
	productURLPaths   = []string{"url", "link", "product_url", "href"}

	failureStatuses = map[string]bool{"error": true, "failed": true, "failure": true, "fail": true}
)

// Response is a free-form JSON body from an automation endpoint. Accessors
// never fail on unexpected shapes; they return zero values instead.
type Response struct {
	StatusCode int
	Body       []byte
	root       gjson.Result
}

func NewResponse(statusCode int, body []byte) Response {
	r := Response{StatusCode: statusCode, Body: body}
	if gjson.ValidBytes(body) {
		r.root = gjson.ParseBytes(body)
	}
	return r
}

// JSONResponse builds a Response from a Go value, for local fixtures and tests.
func JSONResponse(v interface{}) Response {
	data, _ := json.Marshal(v)
	return NewResponse(200, data)
}

func (r Response) Get(path string) gjson.Result {
	return r.root.Get(path)
}

func (r Response) IsJSON() bool {
	return r.root.Exists()
}

func (r Response) SessionID() string {
	if !r.root.IsObject() {
		return ""
	}
	return firstString(r.root, sessionIDPaths)
}

func (r Response) Status() string {
	if r.root.Type == gjson.String {
		return strings.ToLower(strings.TrimSpace(r.root.Str))
	}
	return strings.ToLower(strings.TrimSpace(r.root.Get("status").String()))
}

// Succeeded reports any of the success aliases: status "success", a bare
// "success" string, success=true, or the presence of order_id/booking_id.
func (r Response) Succeeded() bool {
	if r.Status() == "success" {
		return true
	}
	if !r.root.IsObject() {
		return false
	}
	if s := r.root.Get("success"); s.Exists() && s.Type == gjson.True {
		return true
	}
	return r.OrderID() != "" || r.BookingID() != ""
}

// Failed reports an explicit failure signal. A response that neither
// succeeded nor failed is ambiguous and left to the step's acceptance rule.
func (r Response) Failed() bool {
	if failureStatuses[r.Status()] {
		return true
	}
	if !r.root.IsObject() {
		return false
	}
	if s := r.root.Get("success"); s.Exists() && s.Type == gjson.False {
		return true
	}
	e := r.root.Get("error")
	return e.Exists() && e.Type != gjson.Null && e.Type != gjson.False && e.String() != ""
}

func (r Response) OrderID() string {
	return firstString(r.root, []string{"order_id", "orderId", "data.order_id"})
}

func (r Response) BookingID() string {
	return firstString(r.root, []string{"booking_id", "bookingId", "data.booking_id"})
}

func (r Response) Message() string {
	if r.root.Type == gjson.String {
		return r.root.Str
	}
	return firstString(r.root, messagePaths)
}

// Products normalizes whichever product array alias the body carries and tags
// every item with source. An empty source keeps the item's own "source" field.
func (r Response) Products(source string) []Product {
	list := r.root
	if !list.IsArray() {
		list = gjson.Result{}
		for _, p := range productPaths {
			if v := r.root.Get(p); v.IsArray() {
				list = v
				break
			}
		}
	}
	if !list.IsArray() {
		return nil
	}

	var products []Product
	for _, item := range list.Array() {
		if !item.IsObject() {
			continue
		}
		name := firstString(item, productNamePaths)
		if name == "" {
			continue
		}
		tag := source
		if tag == "" {
			tag = item.Get("source").String()
		}
		products = append(products, Product{
			Name:   name,
			Price:  firstString(item, productPricePaths),
			Image:  firstString(item, productImagePaths),
			URL:    firstString(item, productURLPaths),
			Source: tag,
			Index:  len(products),
			Raw:    json.RawMessage(item.Raw),
		})
	}
	return products
}

func (r Response) String() string {
	s := strings.TrimSpace(string(r.Body))
	if s == "" {
		return "(empty response)"
	}
	return s
}

func firstString(root gjson.Result, paths []string) string {
	for _, p := range paths {
		v := root.Get(p)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

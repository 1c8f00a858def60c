package render

import (
	"bytes"
	"strings"
	"testing"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/chatlog"
)

func TestRenderBareSuccessMatchesStatusSuccess(t *testing.T) {
	t.Parallel()

	want := Render(`{"status":"success"}`)
	for _, content := range []string{`"success"`, `success`, ` "SUCCESS" `} {
		got := Render(content)
		if got.Kind != KindConfirmation {
			t.Fatalf("%q: expected confirmation view, got %s", content, got.Kind)
		}
		if got.Title != want.Title || got.Message != want.Message {
			t.Fatalf("%q: view differs from status success: %+v vs %+v", content, got, want)
		}
	}
}

func TestRenderStructuredKinds(t *testing.T) {
	t.Parallel()

	products := []automation.Product{
		{Name: "Milk", Price: "32", Source: "instamart"},
		{Name: "Bread", Price: "40", Source: "blinkit"},
	}
	v := Render(ProductList(KindProductList, "groceries", "Here you go", products))
	if v.Kind != KindProductList || len(v.Products) != 2 {
		t.Fatalf("unexpected product list view: %+v", v)
	}
	if v.Products[1].Source != "blinkit" || v.Products[1].Index != 1 {
		t.Fatalf("expected per-item source to survive, got %+v", v.Products[1])
	}

	hotels := Render(`{"type":"hotel_list","source":"oyo","hotels":[{"hotel_name":"Sea View","price_per_night":"2100"}]}`)
	if hotels.Kind != KindHotelList || hotels.Products[0].Name != "Sea View" || hotels.Products[0].Source != "oyo" {
		t.Fatalf("unexpected hotel view: %+v", hotels)
	}

	order := Render(`{"type":"order_success","order_id":"OD-1","message":"Order placed"}`)
	if order.Kind != KindOrderSuccess || len(order.Details) == 0 || order.Details[0].Value != "OD-1" {
		t.Fatalf("unexpected order view: %+v", order)
	}

	checkout := Render(`{"type":"swiggy_checkout","items":[{"name":"Biryani","quantity":2}],"total":"480"}`)
	if checkout.Kind != KindSwiggyCheckout || checkout.Details[0].Value != "Biryani x2" {
		t.Fatalf("unexpected checkout view: %+v", checkout)
	}
}

func TestRenderUnknownShapesFallBackToText(t *testing.T) {
	t.Parallel()

	for _, content := range []string{`{"type":"mystery","a":1}`, `[1,2]`, `not json`, `{"status":"error"}`} {
		v := Render(content)
		if v.Kind != KindText {
			t.Fatalf("%q: expected text view, got %s", content, v.Kind)
		}
		if Plain(v.Segments) != content {
			t.Fatalf("%q: expected literal text, got %q", content, Plain(v.Segments))
		}
	}
}

func TestFormatBoldAndShortcodes(t *testing.T) {
	t.Parallel()

	segs := Format("Added :cart: *Milk* to cart 🥛 * alone")
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %+v", segs)
	}
	if segs[0].Text != "Added 🛒 " || segs[0].Bold {
		t.Fatalf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Text != "Milk" || !segs[1].Bold {
		t.Fatalf("unexpected bold segment: %+v", segs[1])
	}
	if segs[2].Text != " to cart 🥛 * alone" {
		t.Fatalf("expected literal passthrough, got %q", segs[2].Text)
	}
	if got := Plain(Format(":unknown: **")); got != ":unknown: **" {
		t.Fatalf("expected unknown shortcode untouched, got %q", got)
	}
}

func TestTerminalMarksSelectedProducts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	term := NewTerminal(&buf)
	milk := automation.Product{Name: "Milk", Price: "32", Source: "instamart"}
	content := ProductList(KindProductList, "instamart", "", []automation.Product{milk})

	term.Print(chatlog.Message{Role: chatlog.RoleSystem, Content: content}, func(p automation.Product) int {
		if p.Key() == milk.Key() {
			return 3
		}
		return 0
	})
	out := buf.String()
	if !strings.Contains(out, "[1] Milk") || !strings.Contains(out, "x3") {
		t.Fatalf("expected selected product card, got %q", out)
	}
}

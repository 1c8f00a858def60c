package automation

import "encoding/json"

type Product struct {
	Name   string          `json:"name"`
	Price  string          `json:"price,omitempty"`
	Image  string          `json:"image,omitempty"`
	URL    string          `json:"url,omitempty"`
	Source string          `json:"source,omitempty"`
	Index  int             `json:"index"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Key identifies a product by name, price and source. Backends do not return
// stable ids, so two listings of the same item collapse onto one key.
func (p Product) Key() string {
	return p.Name + "|" + p.Price + "|" + p.Source
}

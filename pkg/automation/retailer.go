package automation

import "net/http"

// Operation names one endpoint in a retailer's automation API family.
type Operation string

const (
	OpCheckSession Operation = "check_session"
	OpLogin        Operation = "login"
	OpSubmitOTP    Operation = "submit_otp"
	OpSearch       Operation = "search"
	OpAddToCart    Operation = "add_to_cart"
	OpAddAddress   Operation = "add_address"
	OpPay          Operation = "pay"
	OpBook         Operation = "book"
)

type Endpoint struct {
	Method string
	Path   string
}

func Post(path string) Endpoint {
	return Endpoint{Method: http.MethodPost, Path: path}
}

func Get(path string) Endpoint {
	return Endpoint{Method: http.MethodGet, Path: path}
}

// Retailer describes one external shopping or booking service.
type Retailer struct {
	Name      string
	Label     string
	Category  string
	Endpoints map[Operation]Endpoint
}

func (r Retailer) Endpoint(op Operation) (Endpoint, bool) {
	ep, ok := r.Endpoints[op]
	return ep, ok
}

func (r Retailer) Supports(op Operation) bool {
	_, ok := r.Endpoints[op]
	return ok
}

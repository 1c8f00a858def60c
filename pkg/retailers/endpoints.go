package retailers

import "khwaaish/pkg/automation"

// family builds the common endpoint set rooted at /{name}.
func family(name string, otpPath string, ops ...automation.Operation) map[automation.Operation]automation.Endpoint {
	paths := map[automation.Operation]automation.Endpoint{
		automation.OpCheckSession: automation.Get("/" + name + "/check-session"),
		automation.OpLogin:        automation.Post("/" + name + "/login"),
		automation.OpSubmitOTP:    automation.Post("/" + name + "/" + otpPath),
		automation.OpSearch:       automation.Post("/" + name + "/search"),
		automation.OpAddToCart:    automation.Post("/" + name + "/add-to-cart"),
		automation.OpAddAddress:   automation.Post("/" + name + "/add-address"),
		automation.OpPay:          automation.Post("/" + name + "/pay-with-upi"),
		automation.OpBook:         automation.Post("/" + name + "/book"),
	}
	out := make(map[automation.Operation]automation.Endpoint, len(ops))
	for _, op := range ops {
		out[op] = paths[op]
	}
	return out
}

var backends = map[string]automation.Retailer{
	"instamart": {
		Name: "instamart", Label: "Instamart", Category: "grocery",
		Endpoints: family("instamart", "submit-otp",
			automation.OpLogin, automation.OpSubmitOTP, automation.OpSearch,
			automation.OpAddToCart, automation.OpAddAddress, automation.OpPay),
	},
	"blinkit": {
		Name: "blinkit", Label: "Blinkit", Category: "grocery",
		Endpoints: family("blinkit", "submit-otp",
			automation.OpLogin, automation.OpSubmitOTP, automation.OpSearch,
			automation.OpAddToCart, automation.OpAddAddress, automation.OpPay),
	},
	"pantaloons": {
		Name: "pantaloons", Label: "Pantaloons", Category: "fashion",
		Endpoints: family("pantaloons", "verify-otp",
			automation.OpCheckSession, automation.OpLogin, automation.OpSubmitOTP,
			automation.OpSearch, automation.OpAddToCart, automation.OpAddAddress, automation.OpPay),
	},
	"swiggy": {
		Name: "swiggy", Label: "Swiggy", Category: "food",
		Endpoints: family("swiggy", "enter-otp",
			automation.OpLogin, automation.OpSubmitOTP, automation.OpSearch, automation.OpAddToCart),
	},
	"oyo": {
		Name: "oyo", Label: "OYO", Category: "hotel",
		Endpoints: family("oyo", "verify-otp",
			automation.OpLogin, automation.OpSubmitOTP, automation.OpSearch, automation.OpBook),
	},
	"bookingcom": {
		Name: "bookingcom", Label: "Booking.com", Category: "hotel",
		Endpoints: family("bookingcom", "verify-otp", automation.OpSearch, automation.OpBook),
	},
}

// Backend returns the endpoint table for one automation backend.
func Backend(name string) (automation.Retailer, bool) {
	r, ok := backends[name]
	return r, ok
}

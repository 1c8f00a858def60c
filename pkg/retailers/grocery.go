package retailers

import (
	"khwaaish/pkg/automation"
	"khwaaish/pkg/flow"
)

func groceryFlow(name, label string) *flow.Definition {
	return &flow.Definition{
		Name:      name,
		Label:     label,
		Category:  "grocery",
		Retailers: []string{name},
		Initial:   "login",
		Greeting:  ":sparkles: Welcome to " + label + "! Groceries in minutes.",
		Steps: []*flow.Step{
			loginStep(phoneField, flow.Field{Name: "location", Label: "location", Prompt: "Which area should we deliver to?"}),
			otpStep(),
			searchStep("", "What would you like to order?"),
			cartStep("address"),
			addressStep(),
			payStep(),
		},
	}
}

func instamart() *flow.Definition {
	return groceryFlow("instamart", "Instamart")
}

func blinkit() *flow.Definition {
	return groceryFlow("blinkit", "Blinkit")
}

var dualGrocery = []string{"instamart", "blinkit"}

// groceries compares Instamart and Blinkit side by side. Login fans out to
// both; OTP and search only reach the retailers that handed out a session, and
// cart, address and payment only reach the retailers whose items were picked.
func groceries() *flow.Definition {
	login := loginStep(phoneField, flow.Field{Name: "location", Label: "location", Prompt: "Which area should we deliver to?"})
	login.Targets = dualGrocery
	login.SkipTo, login.Skip = "", nil

	otp := otpStep()
	otp.Targets = dualGrocery
	otp.FollowSession = true
	otp.Fields = []flow.Field{
		{Name: "instamart_otp", Label: "Instamart OTP", Prompt: "Enter the 6-digit Instamart OTP:", Rules: []flow.Rule{flow.Digits(6)}, Retailer: "instamart"},
		{Name: "blinkit_otp", Label: "Blinkit OTP", Prompt: "Enter the 6-digit Blinkit OTP:", Rules: []flow.Rule{flow.Digits(6)}, Retailer: "blinkit"},
	}
	otp.Payload = func(req flow.Request) map[string]interface{} {
		return automation.OTPPayload(req.SessionID, req.Fields[req.Retailer+"_otp"])
	}

	search := searchStep(":search: Searching Instamart and Blinkit together.", "What are you shopping for?")
	search.Targets = dualGrocery
	search.FollowSession = true

	cart := cartStep("address")
	cart.Targets = dualGrocery
	cart.FollowSession = true

	address := addressStep()
	address.Targets = dualGrocery
	address.FollowCart = true

	pay := payStep()
	pay.Targets = dualGrocery
	pay.FollowCart = true

	return &flow.Definition{
		Name:      "groceries",
		Label:     "Groceries",
		Category:  "grocery",
		Retailers: dualGrocery,
		Initial:   "login",
		Greeting:  ":sparkles: Compare Instamart and Blinkit in one chat.",
		Steps:     []*flow.Step{login, otp, search, cart, address, pay},
	}
}

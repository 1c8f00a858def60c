package retailers

import (
	"khwaaish/pkg/automation"
	"khwaaish/pkg/flow"
	"khwaaish/pkg/render"
)

// swiggy checks out straight from the cart with a UPI payment hint. The
// automation service is slow to answer once the UPI collect request is raised,
// so a dropped connection on that call is reported as "payment request sent".
func swiggy() *flow.Definition {
	checkout := &flow.Step{
		Name:              "cart",
		Kind:              flow.KindCart,
		Prompt:            ":food: Add dishes with /add <number>, then /confirm to pay.",
		Fields:            []flow.Field{upiField},
		Operation:         automation.OpAddToCart,
		Back:              "search",
		Policy:            flow.PolicyOptimistic,
		OptimisticMessage: ":money: Payment request sent. Approve it in your UPI app to place the order.",
		Accept:            flow.AcceptUnlessFailed,
		Terminal:          true,
		Success:           render.KindSwiggyCheckout,
		Payload: func(req flow.Request) map[string]interface{} {
			payload := automation.CartPayload(req.SessionID, req.Lines, "upi")
			payload["upi_id"] = req.Fields["upi_id"]
			return payload
		},
	}

	return &flow.Definition{
		Name:      "swiggy",
		Label:     "Swiggy",
		Category:  "food",
		Retailers: []string{"swiggy"},
		Initial:   "login",
		Greeting:  ":food: Hungry? Let's order from Swiggy.",
		Steps: []*flow.Step{
			loginStep(phoneField, flow.Field{Name: "location", Label: "location", Prompt: "Where should we deliver?"}),
			otpStep(),
			searchStep("", "What would you like to eat?"),
			checkout,
		},
	}
}

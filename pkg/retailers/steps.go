package retailers

import (
	"fmt"
	"strings"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/flow"
	"khwaaish/pkg/render"
)

var (
	phoneField   = flow.Field{Name: "phone", Label: "phone number", Prompt: "Enter your 10-digit mobile number:", Rules: []flow.Rule{flow.Digits(10)}}
	otpField     = flow.Field{Name: "otp", Label: "OTP", Prompt: "Enter the 6-digit OTP you received:", Rules: []flow.Rule{flow.Digits(6)}}
	upiField     = flow.Field{Name: "upi_id", Label: "UPI ID", Prompt: "Enter your UPI ID (e.g. name@bank):", Rules: []flow.Rule{flow.UPI()}}
	addressField = flow.Field{Name: "address", Label: "address", Prompt: "Enter your house/flat number and street:"}
	pincodeField = flow.Field{Name: "pincode", Label: "pincode", Prompt: "Enter your 6-digit pincode:", Rules: []flow.Rule{flow.Digits(6)}}
	landmarkFld  = flow.Field{Name: "landmark", Label: "landmark", Prompt: "Any landmark? (send - to skip)", Optional: true}
)

func otpRequiredFalse(resp automation.Response) bool {
	v := resp.Get("otp_required")
	return v.Exists() && !v.Bool()
}

func loginStep(fields ...flow.Field) *flow.Step {
	return &flow.Step{
		Name:      "login",
		Kind:      flow.KindForm,
		Prompt:    ":lock: Let's log you in.",
		Fields:    fields,
		Operation: automation.OpLogin,
		Accept:    flow.RequireSession,
		Next:      "otp",
		SkipTo:    "search",
		Skip:      otpRequiredFalse,
		Progress: func(flow.Request, automation.Response) string {
			return ":phone: OTP sent to your phone."
		},
	}
}

func otpStep() *flow.Step {
	return &flow.Step{
		Name:      "otp",
		Kind:      flow.KindForm,
		Fields:    []flow.Field{otpField},
		Operation: automation.OpSubmitOTP,
		Accept:    flow.RequireSuccess,
		Next:      "search",
		Progress: func(flow.Request, automation.Response) string {
			return ":check: Logged in successfully."
		},
	}
}

func searchStep(prompt, fieldPrompt string) *flow.Step {
	return &flow.Step{
		Name:      "search",
		Kind:      flow.KindSearch,
		Prompt:    prompt,
		Fields:    []flow.Field{{Name: "query", Label: "search", Prompt: fieldPrompt}},
		Operation: automation.OpSearch,
		Next:      "cart",
		Progress: func(req flow.Request, resp automation.Response) string {
			return fmt.Sprintf(":search: Results for *%s*", req.Fields["query"])
		},
	}
}

func cartStep(next string) *flow.Step {
	return &flow.Step{
		Name:      "cart",
		Kind:      flow.KindCart,
		Prompt:    ":cart: Add items with /add <number>, then /confirm.",
		Operation: automation.OpAddToCart,
		Back:      "search",
		Next:      next,
		Progress:  cartProgress,
	}
}

func cartProgress(req flow.Request, resp automation.Response) string {
	if msg := resp.Message(); msg != "" && !strings.EqualFold(msg, "success") {
		return ":cart: " + msg
	}
	return fmt.Sprintf(":cart: Added %d item(s) to your cart.", len(req.Lines))
}

func addressStep() *flow.Step {
	return &flow.Step{
		Name:      "address",
		Kind:      flow.KindForm,
		Prompt:    ":pin: Where should we deliver?",
		Fields:    []flow.Field{addressField, landmarkFld, pincodeField},
		Operation: automation.OpAddAddress,
		Next:      "pay",
		Progress: func(flow.Request, automation.Response) string {
			return ":check: Address saved."
		},
	}
}

func payStep() *flow.Step {
	return &flow.Step{
		Name:      "pay",
		Kind:      flow.KindForm,
		Prompt:    ":money: Almost done. Pay with UPI.",
		Fields:    []flow.Field{upiField},
		Operation: automation.OpPay,
		Accept:    flow.RequireSuccess,
		Terminal:  true,
		Success:   render.KindOrderSuccess,
	}
}

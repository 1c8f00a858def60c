package retailers

import (
	"strings"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/flow"
)

var sizes = []string{"XS", "S", "M", "L", "XL", "XXL"}

// pantaloons checks for a saved browser session first and only asks for an
// OTP when there is none.
func pantaloons() *flow.Definition {
	check := &flow.Step{
		Name:      "check_session",
		Kind:      flow.KindForm,
		Prompt:    ":lock: Let's see if you are already logged in.",
		Fields:    []flow.Field{phoneField},
		Operation: automation.OpCheckSession,
		Accept: func(resp automation.Response, _ bool) bool {
			return resp.Succeeded() || resp.Get("session_exists").Bool()
		},
		Next:            "search",
		FallbackTo:      "login",
		FallbackMessage: "No saved session found. Sending you an OTP.",
		Progress: func(flow.Request, automation.Response) string {
			return ":check: Welcome back! Your saved session is active."
		},
	}

	login := loginStep(phoneField)
	login.Prompt = ""

	cart := cartStep("address")
	cart.Fields = []flow.Field{{
		Name:   "size",
		Label:  "size",
		Prompt: "Which size? (" + strings.Join(sizes, ", ") + ")",
		Rules:  []flow.Rule{flow.OneOf(sizes...)},
	}}
	cart.Payload = func(req flow.Request) map[string]interface{} {
		size := strings.ToUpper(req.Fields["size"])
		lines := make([]automation.CartLine, len(req.Lines))
		for i, line := range req.Lines {
			if line.Size == "" {
				line.Size = size
			}
			lines[i] = line
		}
		return automation.CartPayload(req.SessionID, lines, "")
	}

	return &flow.Definition{
		Name:      "pantaloons",
		Label:     "Pantaloons",
		Category:  "fashion",
		Retailers: []string{"pantaloons"},
		Initial:   "check_session",
		Greeting:  ":sparkles: Welcome to Pantaloons fashion.",
		Steps: []*flow.Step{
			check,
			login,
			otpStep(),
			searchStep("", "What are you looking for? (e.g. blue denim shirt)"),
			cart,
			addressStep(),
			payStep(),
		},
	}
}

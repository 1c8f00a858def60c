package flow

import (
	"fmt"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/render"
)

// Kind tags what a step does with its response.
type Kind string

const (
	// KindForm collects fields and calls one endpoint.
	KindForm Kind = "form"
	// KindSearch turns the response into a product list message.
	KindSearch Kind = "search"
	// KindCart sends the cart selection; an empty selection never reaches the network.
	KindCart Kind = "cart"
	// KindAction calls an endpoint with no user input.
	KindAction Kind = "action"
)

// Policy decides what a transport failure on a step means.
type Policy string

const (
	// PolicyReport surfaces every failure and keeps the step open.
	PolicyReport Policy = "report"
	// PolicyOptimistic treats a transport failure as sent: the flow advances
	// with OptimisticMessage and the error is logged at WARN.
	PolicyOptimistic Policy = "optimistic"
)

const (
	StateIdle      = "idle"
	StateConfirmed = "confirmed"
)

// Request is what a payload builder sees for one target retailer.
type Request struct {
	Retailer  string
	SessionID string
	Fields    map[string]string
	Lines     []automation.CartLine
	Limit     int
}

type PayloadFunc func(Request) map[string]interface{}

// AcceptFunc decides whether a 2xx response completes the step. hadSession
// reports whether a session id was already known for the retailer.
type AcceptFunc func(resp automation.Response, hadSession bool) bool

type Step struct {
	Name   string
	Kind   Kind
	Prompt string
	Fields []Field

	// Operation is empty for local steps, which only collect fields.
	Operation automation.Operation
	// Targets defaults to the definition's primary retailer. More than one
	// target fans the operation out.
	Targets []string
	// FollowCart narrows a fan-out to the targets that hold selected items.
	FollowCart bool
	// FollowSession narrows a fan-out to the targets that hold a session, so a
	// retailer whose login failed drops out of the rest of the flow.
	FollowSession bool
	Payload    PayloadFunc
	Accept     AcceptFunc

	Next       string
	Back       string
	SkipTo     string
	Skip       func(automation.Response) bool
	FallbackTo string

	Policy            Policy
	OptimisticMessage string
	FallbackMessage   string
	Progress          func(Request, automation.Response) string

	// Terminal steps move the flow to confirmed and push a Success payload.
	Terminal bool
	Success  render.Kind
}

func (s *Step) policy() Policy {
	if s.Policy == "" {
		return PolicyReport
	}
	return s.Policy
}

func (s *Step) accept(resp automation.Response, hadSession bool) bool {
	if s.Accept != nil {
		return s.Accept(resp, hadSession)
	}
	return AcceptUnlessFailed(resp, hadSession)
}

// AcceptUnlessFailed accepts any 2xx response that does not signal failure.
func AcceptUnlessFailed(resp automation.Response, _ bool) bool {
	return !resp.Failed()
}

// RequireSuccess accepts only explicit success signals.
func RequireSuccess(resp automation.Response, _ bool) bool {
	return resp.Succeeded()
}

// RequireSession accepts responses that carry a session id, or that do not
// fail when one is already held.
func RequireSession(resp automation.Response, hadSession bool) bool {
	if resp.Failed() {
		return false
	}
	return resp.SessionID() != "" || hadSession
}

// Definition is one retailer's ordered step table.
type Definition struct {
	Name     string
	Label    string
	Category string
	// Retailers lists the automation backends this flow talks to. The first
	// is the default target.
	Retailers []string
	Initial   string
	Steps     []*Step
	Greeting  string
}

func (d *Definition) Step(name string) *Step {
	for _, s := range d.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (d *Definition) targets(s *Step) []string {
	if len(s.Targets) > 0 {
		return s.Targets
	}
	if len(d.Retailers) > 0 {
		return d.Retailers[:1]
	}
	return []string{d.Name}
}

// Validate checks that every transition names a known step.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("flow definition has no name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("flow %s has no steps", d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Name == "" || s.Name == StateIdle || s.Name == StateConfirmed {
			return fmt.Errorf("flow %s: invalid step name %q", d.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("flow %s: duplicate step %q", d.Name, s.Name)
		}
		seen[s.Name] = true
	}
	if !seen[d.Initial] {
		return fmt.Errorf("flow %s: unknown initial step %q", d.Name, d.Initial)
	}
	for _, s := range d.Steps {
		if !s.Terminal && s.Next == "" {
			return fmt.Errorf("flow %s: step %s has no next step", d.Name, s.Name)
		}
		for label, ref := range map[string]string{"next": s.Next, "back": s.Back, "skip_to": s.SkipTo, "fallback_to": s.FallbackTo} {
			if ref != "" && !seen[ref] {
				return fmt.Errorf("flow %s: step %s %s references unknown step %q", d.Name, s.Name, label, ref)
			}
		}
		if s.Terminal && s.Operation == "" {
			return fmt.Errorf("flow %s: terminal step %s has no operation", d.Name, s.Name)
		}
		if s.Kind == KindCart && s.Operation == "" {
			return fmt.Errorf("flow %s: cart step %s has no operation", d.Name, s.Name)
		}
	}
	return nil
}

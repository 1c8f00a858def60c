package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/logger"
	"khwaaish/pkg/render"
)

// ErrAborted is returned when the flow was reset while a request was in flight.
var ErrAborted = errors.New("flow: reset while request was in flight")

type plan struct {
	gen        uint64
	step       *Step
	requests   map[string]Request
	order      []string
	hadSession map[string]bool
}

// Submit validates the open step and calls its endpoint. It is not
// re-entrant: while a request is in flight it returns ErrBusy without
// touching the network.
func (c *Controller) Submit(ctx context.Context) error {
	p, msgs, err := c.begin()
	c.push(msgs)
	if err != nil || p == nil {
		return err
	}

	c.notifyLoading(true)
	results := c.dispatch(ctx, p)

	msgs, err = c.finish(p, results)
	c.push(msgs)
	c.notifyLoading(false)
	return err
}

func (c *Controller) begin() (*plan, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading {
		return nil, nil, ErrBusy
	}
	step := c.Step()
	if step == nil {
		return nil, nil, ErrNotActive
	}

	targets := c.liveTargets(step)
	lines := map[string][]automation.CartLine{}
	if step.Operation != "" && (step.Kind == KindCart || step.FollowCart) {
		if len(targets) == 1 {
			lines[targets[0]] = c.cart.Lines()
		} else {
			lines = c.cart.BySource()
		}
		var withLines []string
		for _, t := range targets {
			if len(lines[t]) > 0 {
				withLines = append(withLines, t)
			}
		}
		if len(withLines) == 0 {
			return nil, []string{msgSelectItem}, ErrEmptySelection
		}
		targets = withLines
	}

	for _, f := range c.stepFields(step) {
		if msg := f.Check(c.fields[f.Name]); msg != "" {
			delete(c.fields, f.Name)
			return nil, []string{msg}, fmt.Errorf("%w: %s", ErrValidation, f.Name)
		}
	}

	merged := make(map[string]string, len(c.values)+len(c.fields))
	for k, v := range c.values {
		merged[k] = v
	}
	for k, v := range c.fields {
		merged[k] = v
	}

	if step.Operation == "" {
		c.commitFields()
		if err := c.fire(eventAdvance); err != nil {
			return nil, nil, err
		}
		return nil, c.enterMessages(""), nil
	}

	p := &plan{
		gen:        c.gen,
		step:       step,
		requests:   make(map[string]Request, len(targets)),
		order:      targets,
		hadSession: make(map[string]bool, len(targets)),
	}
	for _, t := range targets {
		p.requests[t] = Request{
			Retailer:  t,
			SessionID: c.sessions[t],
			Fields:    merged,
			Lines:     lines[t],
			Limit:     c.limit,
		}
		p.hadSession[t] = c.sessions[t] != ""
	}
	c.loading = true
	return p, nil, nil
}

func (c *Controller) dispatch(ctx context.Context, p *plan) []automation.Result {
	callers := make([]automation.Caller, 0, len(p.order))
	for _, t := range p.order {
		callers = append(callers, c.callers[t])
	}

	logger.InfoCF("flow", "Submitting step", map[string]interface{}{
		"flow":                c.def.Name,
		logger.FieldStep:      p.step.Name,
		logger.FieldOperation: string(p.step.Operation),
		"targets":             p.order,
	})

	return automation.FanOut(ctx, callers, func(ctx context.Context, caller automation.Caller) (automation.Response, error) {
		req := p.requests[caller.Retailer()]
		return caller.Call(ctx, p.step.Operation, buildPayload(p.step, req))
	})
}

func (c *Controller) finish(p *plan, results []automation.Result) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.gen != c.gen {
		return nil, ErrAborted
	}
	c.loading = false
	step := p.step
	multi := len(results) > 1

	for _, r := range results {
		if id := r.Response.SessionID(); id != "" {
			c.sessions[r.Retailer] = id
		}
	}

	var (
		accepted   []automation.Result
		msgs       []string
		errs       []error
		fallback   int
		optimistic bool
	)
	for _, r := range results {
		prefix := ""
		if multi {
			prefix = retailerLabel(r.Retailer) + ": "
		}
		switch {
		case r.Err == nil && step.accept(r.Response, p.hadSession[r.Retailer]):
			accepted = append(accepted, r)
		case r.Err == nil:
			if step.FallbackTo != "" && noSavedSession(r.Response) {
				fallback++
				continue
			}
			msgs = append(msgs, failureMessage(prefix, r.Response))
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Retailer, step.Operation, ErrRejected))
		case step.FallbackTo != "" && errors.Is(r.Err, automation.ErrNotFound):
			fallback++
		case step.policy() == PolicyOptimistic && isTransport(r.Err):
			logger.WarnCF("flow", "Transport failure treated as sent", map[string]interface{}{
				"flow":                c.def.Name,
				logger.FieldStep:      step.Name,
				logger.FieldRetailer:  r.Retailer,
				logger.FieldError:     r.Err.Error(),
				logger.FieldOperation: string(step.Operation),
			})
			optimistic = true
		default:
			msgs = append(msgs, errorMessage(prefix, r.Err))
			errs = append(errs, r.Err)
		}
	}

	if len(accepted) == 0 && !optimistic {
		if fallback > 0 {
			c.commitFields()
			if err := c.fire(eventFallback); err != nil {
				return msgs, err
			}
			lead := step.FallbackMessage
			if lead == "" {
				lead = msgSessionMissing
			}
			return append(msgs, c.enterMessages(lead)...), nil
		}
		logger.WarnCF("flow", "Step failed", map[string]interface{}{
			"flow":           c.def.Name,
			logger.FieldStep: step.Name,
			"failures":       len(errs),
		})
		if step.Kind != KindCart {
			c.fields = map[string]string{}
			if prompt := c.fieldPrompt(); prompt != "" {
				msgs = append(msgs, prompt)
			}
		}
		return msgs, fmt.Errorf("%s: %w", step.Name, errors.Join(errs...))
	}

	var primary automation.Response
	var req Request
	if len(accepted) > 0 {
		primary = accepted[0].Response
		req = p.requests[accepted[0].Retailer]
	} else {
		req = p.requests[p.order[0]]
	}

	if step.Kind == KindSearch {
		products := automation.MergeProducts(accepted)
		if len(products) == 0 {
			delete(c.fields, "query")
			return append(msgs, fmt.Sprintf(msgNoProducts, req.Fields["query"])), nil
		}
		c.products = products
		kind := render.KindProductList
		if c.def.Category == "hotel" {
			kind = render.KindHotelList
		}
		note := ""
		if step.Progress != nil {
			note = step.Progress(req, primary)
		}
		source := c.def.Name
		if len(c.def.Retailers) == 1 {
			source = c.def.Retailers[0]
		}
		msgs = append(msgs, render.ProductList(kind, source, note, products))
	} else if step.Progress != nil && len(accepted) > 0 {
		msgs = append(msgs, step.Progress(req, primary))
	}
	if optimistic {
		note := step.OptimisticMessage
		if note == "" {
			note = msgOptimistic
		}
		msgs = append(msgs, note)
	}

	c.commitFields()
	event := eventAdvance
	if step.SkipTo != "" && step.Skip != nil && len(accepted) > 0 && step.Skip(primary) {
		event = eventSkip
	}
	if err := c.fire(event); err != nil {
		return msgs, err
	}

	logger.InfoCF("flow", "Step completed", map[string]interface{}{
		"flow":           c.def.Name,
		logger.FieldStep: step.Name,
		"next":           c.machine.Current(),
		"accepted":       len(accepted),
		"optimistic":     optimistic,
	})

	if step.Terminal {
		if len(accepted) > 0 {
			msgs = append(msgs, c.successPayload(step, req, accepted))
		}
		c.cart.Clear()
		c.products = nil
		return msgs, nil
	}
	return append(msgs, c.enterMessages("")...), nil
}

// commitFields must be called with c.mu held.
func (c *Controller) commitFields() {
	for k, v := range c.fields {
		c.values[k] = v
	}
	c.fields = map[string]string{}
}

func retailerLabel(name string) string {
	if len(name) == 0 {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func (c *Controller) successPayload(step *Step, req Request, accepted []automation.Result) string {
	kind := step.Success
	if kind == "" {
		kind = render.KindOrderSuccess
	}
	resp := accepted[0].Response
	fields := map[string]interface{}{
		"retailer": c.def.Label,
	}
	if msg := resp.Message(); msg != "" && !strings.EqualFold(msg, "success") {
		fields["message"] = msg
	}
	if id := resp.OrderID(); id != "" {
		fields["order_id"] = id
	}
	if id := resp.BookingID(); id != "" {
		fields["booking_id"] = id
	}
	for _, key := range []string{"hotel_name", "check_in", "check_out", "total", "amount", "restaurant"} {
		if v := resp.Get(key); v.Exists() && v.String() != "" {
			fields[key] = v.String()
		}
	}
	if upi := req.Fields["upi_id"]; upi != "" {
		fields["upi_id"] = upi
	}
	if kind == render.KindSwiggyCheckout || kind == render.KindOrderSuccess {
		var items []map[string]interface{}
		for _, r := range accepted {
			for _, line := range c.cart.BySource()[r.Retailer] {
				items = append(items, map[string]interface{}{"name": line.Product.Name, "quantity": line.Quantity})
			}
		}
		if len(items) == 0 {
			for _, line := range c.cart.Lines() {
				items = append(items, map[string]interface{}{"name": line.Product.Name, "quantity": line.Quantity})
			}
		}
		if len(items) > 0 {
			fields["items"] = items
		}
	}
	return render.Payload(kind, fields)
}

func buildPayload(step *Step, req Request) map[string]interface{} {
	var payload map[string]interface{}
	if step.Payload != nil {
		payload = step.Payload(req)
	} else {
		payload = defaultPayload(step, req)
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if req.SessionID != "" {
		if _, ok := payload["session_id"]; !ok {
			payload["session_id"] = req.SessionID
		}
	}
	return payload
}

func defaultPayload(step *Step, req Request) map[string]interface{} {
	switch step.Operation {
	case automation.OpLogin, automation.OpCheckSession:
		return automation.LoginPayload(stepValues(step, req))
	case automation.OpSubmitOTP:
		return automation.OTPPayload(req.SessionID, req.Fields["otp"])
	case automation.OpSearch:
		return automation.SearchPayload(req.SessionID, req.Fields["query"], req.Limit)
	case automation.OpAddToCart:
		return automation.CartPayload(req.SessionID, req.Lines, req.Fields["payment_method"])
	case automation.OpAddAddress:
		return automation.AddressPayload(req.SessionID, stepValues(step, req))
	case automation.OpPay:
		return automation.PayPayload(req.SessionID, req.Fields["upi_id"])
	case automation.OpBook:
		payload := automation.AddressPayload(req.SessionID, stepValues(step, req))
		payload["upi_id"] = req.Fields["upi_id"]
		return payload
	default:
		out := map[string]interface{}{}
		for k, v := range stepValues(step, req) {
			out[k] = v
		}
		return out
	}
}

// stepValues picks the step's own non-empty fields out of req.
func stepValues(step *Step, req Request) map[string]string {
	out := make(map[string]string, len(step.Fields))
	for _, f := range step.Fields {
		if v := req.Fields[f.Name]; v != "" {
			out[f.Name] = v
		}
	}
	return out
}

func noSavedSession(resp automation.Response) bool {
	for _, key := range []string{"session_exists", "has_session", "logged_in"} {
		if v := resp.Get(key); v.Exists() && !v.Bool() {
			return true
		}
	}
	switch resp.Status() {
	case "no_session", "not_found", "session_not_found":
		return true
	}
	msg := strings.ToLower(resp.Message())
	return strings.Contains(msg, "no saved session") || strings.Contains(msg, "session not found")
}

func isTransport(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *automation.APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return !errors.Is(err, automation.ErrUnsupported) && !errors.Is(err, context.Canceled)
}

func failureMessage(prefix string, resp automation.Response) string {
	msg := resp.Message()
	if msg == "" {
		msg = resp.String()
	}
	return ":cross: " + prefix + msg
}

func errorMessage(prefix string, err error) string {
	var apiErr *automation.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Response.Message(); msg != "" {
			return ":cross: " + prefix + msg
		}
		if len(apiErr.Response.Body) > 0 {
			return ":cross: " + prefix + apiErr.Response.String()
		}
		return fmt.Sprintf(":cross: %sRequest failed with status %d.", prefix, apiErr.Status)
	}
	return ":cross: " + prefix + msgTransport
}

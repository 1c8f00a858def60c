// Khwaaish - conversational shopping front end
// License: MIT
//
// Copyright (c) 2026 Khwaaish contributors

package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/looplab/fsm"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/cart"
	"khwaaish/pkg/chatlog"
	"khwaaish/pkg/logger"
)

var (
	ErrBusy           = errors.New("flow: a request is already in flight")
	ErrValidation     = errors.New("flow: invalid input")
	ErrEmptySelection = errors.New("flow: no items selected")
	ErrNotActive      = errors.New("flow: no open step")
	ErrRejected       = errors.New("flow: request rejected")
	ErrUnknownField   = errors.New("flow: unknown field")
)

const (
	eventStart    = "start"
	eventAdvance  = "advance"
	eventSkip     = "skip"
	eventFallback = "fallback"
	eventBack     = "back"
	eventReset    = "reset"
)

const (
	msgSelectItem     = "Please select at least one item."
	msgTransport      = "Something went wrong! Please try again."
	msgNoProducts     = "No products found for %q. Try another search."
	msgOptimistic     = "Payment request sent. Please approve it in your UPI app."
	msgSessionMissing = "No saved session found. Let's log you in."
)

// Controller drives one chat through a Definition. The current step is the
// only visible one; its name is the state of the underlying machine.
type Controller struct {
	mu sync.Mutex

	def     *Definition
	callers map[string]automation.Caller
	log     *chatlog.Log
	cart    *cart.Selection
	machine *fsm.FSM

	fields   map[string]string
	values   map[string]string
	sessions map[string]string
	products []automation.Product
	loading  bool
	gen      uint64
	limit    int

	onLoading func(bool)
}

// New binds def to per-retailer callers, a transcript and a cart. It fails
// when def is malformed or a target has no caller.
func New(def *Definition, callers map[string]automation.Caller, log *chatlog.Log, selection *cart.Selection) (*Controller, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	for _, s := range def.Steps {
		if s.Operation == "" {
			continue
		}
		for _, t := range def.targets(s) {
			if _, ok := callers[t]; !ok {
				return nil, fmt.Errorf("flow %s: no client for retailer %s", def.Name, t)
			}
		}
	}
	if log == nil {
		log = chatlog.NewLog()
	}
	if selection == nil {
		selection = cart.NewSelection()
	}

	c := &Controller{
		def:      def,
		callers:  callers,
		log:      log,
		cart:     selection,
		fields:   map[string]string{},
		values:   map[string]string{},
		sessions: map[string]string{},
		limit:    10,
	}
	c.machine = fsm.NewFSM(StateIdle, buildEvents(def), fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			logger.DebugCF("flow", "Step changed", map[string]interface{}{
				"flow":  def.Name,
				"event": e.Event,
				"from":  e.Src,
				"to":    e.Dst,
			})
		},
	})
	return c, nil
}

func buildEvents(def *Definition) fsm.Events {
	all := []string{StateConfirmed}
	events := fsm.Events{
		{Name: eventStart, Src: []string{StateIdle}, Dst: def.Initial},
	}
	for _, s := range def.Steps {
		all = append(all, s.Name)
		next := s.Next
		if s.Terminal {
			next = StateConfirmed
		}
		events = append(events, fsm.EventDesc{Name: eventAdvance, Src: []string{s.Name}, Dst: next})
		if s.SkipTo != "" {
			events = append(events, fsm.EventDesc{Name: eventSkip, Src: []string{s.Name}, Dst: s.SkipTo})
		}
		if s.FallbackTo != "" {
			events = append(events, fsm.EventDesc{Name: eventFallback, Src: []string{s.Name}, Dst: s.FallbackTo})
		}
		if s.Back != "" {
			events = append(events, fsm.EventDesc{Name: eventBack, Src: []string{s.Name}, Dst: s.Back})
		}
	}
	events = append(events, fsm.EventDesc{Name: eventReset, Src: all, Dst: StateIdle})
	return events
}

func (c *Controller) Definition() *Definition {
	return c.def
}

func (c *Controller) Log() *chatlog.Log {
	return c.log
}

func (c *Controller) Cart() *cart.Selection {
	return c.cart
}

// OnLoading registers fn to run when a request goes out (true) and when its
// result has been applied (false). fn runs without the controller lock held.
func (c *Controller) OnLoading(fn func(loading bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoading = fn
}

func (c *Controller) notifyLoading(loading bool) {
	c.mu.Lock()
	fn := c.onLoading
	c.mu.Unlock()
	if fn != nil {
		fn(loading)
	}
}

// SetSearchLimit caps how many products a search asks for.
func (c *Controller) SetSearchLimit(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.limit = n
	}
}

// Start opens the initial step and pushes its prompt.
func (c *Controller) Start() error {
	c.mu.Lock()
	if err := c.fire(eventStart); err != nil {
		c.mu.Unlock()
		return err
	}
	msgs := c.enterMessages(c.def.Greeting)
	c.mu.Unlock()

	c.push(msgs)
	return nil
}

func (c *Controller) Current() string {
	return c.machine.Current()
}

// Step returns the open step, or nil when idle or confirmed.
func (c *Controller) Step() *Step {
	return c.def.Step(c.machine.Current())
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) SessionID(retailer string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[retailer]
}

func (c *Controller) Products() []automation.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]automation.Product, len(c.products))
	copy(out, c.products)
	return out
}

// SetField records a value for a field of the open step.
func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.Step()
	if step == nil {
		return ErrNotActive
	}
	for _, f := range step.Fields {
		if f.Name == name {
			c.fields[name] = strings.TrimSpace(value)
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, step.Name, name)
}

func (c *Controller) Fields() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out
}

// Pending returns the first field of the open step that has no value yet.
func (c *Controller) Pending() (Field, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.Step()
	if step == nil {
		return Field{}, false
	}
	for _, f := range c.stepFields(step) {
		if _, ok := c.fields[f.Name]; !ok {
			return f, true
		}
	}
	return Field{}, false
}

// liveTargets must be called with c.mu held.
func (c *Controller) liveTargets(step *Step) []string {
	targets := c.def.targets(step)
	if !step.FollowSession {
		return targets
	}
	var live []string
	for _, t := range targets {
		if c.sessions[t] != "" {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return targets
	}
	return live
}

// stepFields drops fields tied to a retailer the step no longer reaches.
// Must be called with c.mu held.
func (c *Controller) stepFields(step *Step) []Field {
	var targets map[string]bool
	out := make([]Field, 0, len(step.Fields))
	for _, f := range step.Fields {
		if f.Retailer != "" {
			if targets == nil {
				targets = map[string]bool{}
				for _, t := range c.liveTargets(step) {
					targets[t] = true
				}
			}
			if !targets[f.Retailer] {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// Back reopens the step's Back target, e.g. search from the cart.
func (c *Controller) Back() error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	step := c.Step()
	if step == nil || step.Back == "" {
		c.mu.Unlock()
		return ErrNotActive
	}
	if err := c.fire(eventBack); err != nil {
		c.mu.Unlock()
		return err
	}
	c.fields = map[string]string{}
	c.mu.Unlock()
	return nil
}

// Reset returns to idle for a new chat. Sessions, fields, results and the cart
// are dropped; a request still in flight is ignored when it lands.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Current() != StateIdle {
		if err := c.fire(eventReset); err != nil {
			c.machine.SetState(StateIdle)
		}
	}
	c.gen++
	c.loading = false
	c.fields = map[string]string{}
	c.values = map[string]string{}
	c.sessions = map[string]string{}
	c.products = nil
	c.cart.Clear()
}

// fire must be called with c.mu held.
func (c *Controller) fire(event string) error {
	err := c.machine.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

// enterMessages prefills the step just entered from earlier answers and
// builds its prompts. Must be called with c.mu held.
func (c *Controller) enterMessages(lead string) []string {
	var msgs []string
	if lead != "" {
		msgs = append(msgs, lead)
	}
	step := c.Step()
	if step == nil {
		return msgs
	}
	if step.Kind != KindSearch {
		for _, f := range c.stepFields(step) {
			if v, ok := c.values[f.Name]; ok && v != "" {
				c.fields[f.Name] = v
			}
		}
	}
	if step.Prompt != "" {
		msgs = append(msgs, step.Prompt)
	}
	if step.Kind != KindCart {
		if prompt := c.fieldPrompt(); prompt != "" {
			msgs = append(msgs, prompt)
		}
	}
	return msgs
}

// fieldPrompt asks for the first unfilled field of the open step.
func (c *Controller) fieldPrompt() string {
	step := c.Step()
	if step == nil {
		return ""
	}
	for _, f := range c.stepFields(step) {
		if _, ok := c.fields[f.Name]; !ok {
			return f.Ask()
		}
	}
	return ""
}

func (c *Controller) push(msgs []string) {
	for _, m := range msgs {
		if m != "" {
			c.log.PushSystem(m)
		}
	}
}

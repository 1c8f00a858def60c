package retailers

import (
	"fmt"
	"sort"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/config"
	"khwaaish/pkg/flow"
)

var builders = map[string]func() *flow.Definition{
	"instamart":  instamart,
	"blinkit":    blinkit,
	"groceries":  groceries,
	"pantaloons": pantaloons,
	"swiggy":     swiggy,
	"oyo":        oyo,
	"bookingcom": bookingcom,
}

// Names returns every known flow name in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns the known flows that cfg has switched on, sorted.
func Enabled(cfg *config.Config) []string {
	var names []string
	for _, name := range Names() {
		if cfg.RetailerEnabled(name) {
			names = append(names, name)
		}
	}
	return names
}

// Definition builds a fresh step table. Each chat gets its own copy.
func Definition(name string) (*flow.Definition, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown retailer: %s", name)
	}
	return build(), nil
}

// Callers builds one automation client per backend the flow talks to.
func Callers(cfg *config.Config, def *flow.Definition) (map[string]automation.Caller, error) {
	callers := make(map[string]automation.Caller, len(def.Retailers))
	for _, name := range def.Retailers {
		backend, ok := Backend(name)
		if !ok {
			return nil, fmt.Errorf("no automation backend for %s", name)
		}
		callers[name] = automation.NewClientFromConfig(cfg, backend)
	}
	return callers, nil
}

// Summary is one row of the retailer listing.
type Summary struct {
	Name       string
	Label      string
	Category   string
	Backends   []string
	Steps      []string
	Enabled    bool
	APIBase    string
	TimeoutSec int
}

func Summaries(cfg *config.Config) []Summary {
	enabled := map[string]bool{}
	for _, name := range cfg.EnabledRetailers() {
		enabled[name] = true
	}
	out := make([]Summary, 0, len(builders))
	for _, name := range Names() {
		def := builders[name]()
		s := Summary{
			Name:       def.Name,
			Label:      def.Label,
			Category:   def.Category,
			Backends:   def.Retailers,
			Enabled:    enabled[name],
			APIBase:    cfg.RetailerBase(name),
			TimeoutSec: cfg.RetailerTimeoutSec(name),
		}
		for _, step := range def.Steps {
			s.Steps = append(s.Steps, step.Name)
		}
		out = append(out, s)
	}
	return out
}

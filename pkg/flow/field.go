package flow

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule returns a user-facing complaint, or "" when value passes.
type Rule func(label, value string) string

type Field struct {
	Name     string
	Label    string
	Prompt   string
	Optional bool
	Rules    []Rule
	// Retailer limits the field to fan-outs that still reach that retailer.
	Retailer string
}

// Check runs the rules in order and returns the first complaint. Empty
// optional fields skip the remaining rules.
func (f Field) Check(value string) string {
	label := f.Label
	if label == "" {
		label = f.Name
	}
	value = strings.TrimSpace(value)
	if value == "" {
		if f.Optional {
			return ""
		}
		return fmt.Sprintf("Please enter your %s.", label)
	}
	for _, rule := range f.Rules {
		if msg := rule(label, value); msg != "" {
			return msg
		}
	}
	return ""
}

// Ask is the question put to the user for this field.
func (f Field) Ask() string {
	if f.Prompt != "" {
		return f.Prompt
	}
	label := f.Label
	if label == "" {
		label = f.Name
	}
	return fmt.Sprintf("Enter your %s:", label)
}

// Digits requires exactly n ASCII digits.
func Digits(n int) Rule {
	return func(label, value string) string {
		if len(value) != n {
			return fmt.Sprintf("%s must be a %d-digit number.", capitalize(label), n)
		}
		for _, r := range value {
			if r < '0' || r > '9' {
				return fmt.Sprintf("%s must be a %d-digit number.", capitalize(label), n)
			}
		}
		return ""
	}
}

var upiPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,256}@[a-zA-Z][a-zA-Z0-9]{1,63}$`)

func UPI() Rule {
	return func(_, value string) string {
		if !upiPattern.MatchString(value) {
			return "Please enter a valid UPI ID (e.g. name@bank)."
		}
		return ""
	}
}

// OneOf restricts a field to a fixed set, compared case-insensitively.
func OneOf(options ...string) Rule {
	return func(label, value string) string {
		for _, o := range options {
			if strings.EqualFold(o, value) {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of: %s.", capitalize(label), strings.Join(options, ", "))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

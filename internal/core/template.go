package core

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Template is a description text with $name or ${name} placeholders.
type Template struct {
	text         string
	placeholders []string
}

// NewTemplate parses text and rejects placeholders not in allowed.
func NewTemplate(text string, allowed []string) (*Template, error) {
	t := &Template{text: text, placeholders: referenced(text)}
	for _, name := range t.placeholders {
		if !slices.Contains(allowed, name) {
			return nil, fmt.Errorf("%w: placeholder %q is not provided (have %s)",
				ErrConfiguration, name, strings.Join(allowed, ", "))
		}
	}
	return t, nil
}

func referenced(text string) []string {
	var names []string
	os.Expand(text, func(name string) string {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
		return ""
	})
	return names
}

// Placeholders lists the names the template references, in order of first use.
func (t *Template) Placeholders() []string {
	return slices.Clone(t.placeholders)
}

// Render substitutes values. A referenced placeholder without a value is an
// invariant violation.
func (t *Template) Render(values map[string]string) (string, error) {
	var missing []string
	out := os.Expand(t.text, func(name string) string {
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: no value for %s", ErrInvariantViolation, strings.Join(missing, ", "))
	}
	return out, nil
}

// Num formats v with prec decimals for use in descriptions.
func Num(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dreamsxin/memrecycle/types"
)

// Field names a configurable policy field
type Field string

const (
	FieldProcess   Field = "process"
	FieldInterval  Field = "interval"
	FieldThreshold Field = "threshold"
)

// Fields lists the configurable fields in display order
var Fields = []Field{FieldThreshold, FieldInterval, FieldProcess}

// ParseField resolves a field name, accepting a few aliases
func ParseField(name string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "process", "process_name", "application", "app":
		return FieldProcess, nil
	case "interval", "check_interval", "check_interval_ms":
		return FieldInterval, nil
	case "threshold", "memory", "memory_threshold", "memory_threshold_mb", "limit":
		return FieldThreshold, nil
	}
	return "", fmt.Errorf("%w: unknown field %q", ErrInvalidValue, name)
}

// Choice is one selectable value of a field
type Choice struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

type unit struct {
	names      []string
	multiplier int64
}

var intervalUnits = []unit{
	{names: []string{"sec", "secs"}, multiplier: 1000},
	{names: []string{"min", "mins"}, multiplier: 60000},
	{names: []string{"hour", "hours"}, multiplier: 3600000},
}

var thresholdUnits = []unit{
	{names: []string{"mb"}, multiplier: 1},
	{names: []string{"gb"}, multiplier: 1024},
}

var intervalChoices = []Choice{
	{Label: "30 secs", Value: "30000"},
	{Label: "1 min", Value: "60000"},
	{Label: "2 mins", Value: "120000"},
	{Label: "5 mins", Value: "300000"},
	{Label: "10 mins", Value: "600000"},
	{Label: "15 mins", Value: "900000"},
	{Label: "30 mins", Value: "1800000"},
	{Label: "1 hour", Value: "3600000"},
}

var thresholdChoices = []Choice{
	{Label: "300 mb", Value: "300"},
	{Label: "400 mb", Value: "400"},
	{Label: "500 mb", Value: "500"},
	{Label: "600 mb", Value: "600"},
	{Label: "700 mb", Value: "700"},
	{Label: "800 mb", Value: "800"},
	{Label: "900 mb", Value: "900"},
	{Label: "1 gb", Value: "1024"},
}

// DefaultProcessChoices are offered when no process list is configured
var DefaultProcessChoices = []string{"MetroTwit", "MetroTwitLoop"}

// Choices returns the selectable values of field with the active value of p marked.
func Choices(field Field, p types.Policy, processes []string) []Choice {
	var src []Choice
	var active string

	switch field {
	case FieldInterval:
		src = intervalChoices
		active = strconv.FormatInt(p.CheckIntervalMs, 10)
	case FieldThreshold:
		src = thresholdChoices
		active = strconv.FormatInt(p.MemoryThresholdMB, 10)
	case FieldProcess:
		if len(processes) == 0 {
			processes = DefaultProcessChoices
		}
		for _, name := range processes {
			src = append(src, Choice{Label: name, Value: name})
		}
		active = p.ProcessName
	default:
		return nil
	}

	out := make([]Choice, len(src))
	for i, c := range src {
		c.Selected = c.Value == active
		out[i] = c
	}
	return out
}

// ParseValue converts a label such as "2 mins" or "1 gb", or a bare number,
// into the field's stored unit (milliseconds or megabytes).
func ParseValue(field Field, text string) (int64, error) {
	var units []unit
	switch field {
	case FieldInterval:
		units = intervalUnits
	case FieldThreshold:
		units = thresholdUnits
	default:
		return 0, fmt.Errorf("%w: %s has no numeric value", ErrInvalidValue, field)
	}

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, fmt.Errorf("%w: empty %s", ErrInvalidValue, field)
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return positive(field, n)
	}

	parts := strings.Fields(text)
	if len(parts) == 2 {
		amount, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q", ErrInvalidValue, field, text)
		}
		for _, u := range units {
			for _, name := range u.names {
				if parts[1] == name {
					if amount > math.MaxInt64/u.multiplier {
						return 0, fmt.Errorf("%w: %s %q is out of range", ErrInvalidValue, field, text)
					}
					return positive(field, amount*u.multiplier)
				}
			}
		}
		return 0, fmt.Errorf("%w: unknown %s unit %q", ErrInvalidValue, field, parts[1])
	}

	if field == FieldInterval {
		if d, err := time.ParseDuration(text); err == nil {
			return positive(field, d.Milliseconds())
		}
	}

	return 0, fmt.Errorf("%w: %s %q", ErrInvalidValue, field, text)
}

// Label renders a stored value using the choice table when it matches one
func Label(field Field, p types.Policy) string {
	for _, c := range Choices(field, p, []string{p.ProcessName}) {
		if c.Selected {
			return c.Label
		}
	}
	switch field {
	case FieldInterval:
		return p.CheckInterval().String()
	case FieldThreshold:
		return fmt.Sprintf("%d mb", p.MemoryThresholdMB)
	}
	return p.ProcessName
}

func positive(field Field, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidValue, field)
	}
	return n, nil
}

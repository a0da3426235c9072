package tools

import (
	"fmt"

	"momentum/internal/domain"
	"momentum/internal/store"
)

// Argument coercion helpers. JSON decoding produces float64 for numbers and
// []any / map[string]any for composites; these normalize to domain shapes.

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}

func intArg(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// habitSpecsArg decodes a habits array of {name, description?, frequency?,
// per_period?, target?} objects.
func habitSpecsArg(args map[string]any, name string) ([]store.HabitSpec, error) {
	raw, ok := args[name].([]any)
	if !ok {
		if _, present := args[name]; !present {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %q must be an array of habit objects", ErrInvalidArgs, name)
	}

	specs := make([]store.HabitSpec, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be an object", ErrInvalidArgs, name, i)
		}
		spec := store.HabitSpec{
			Name:        stringArg(obj, "name"),
			Description: stringArg(obj, "description"),
			Frequency:   domain.Frequency(stringArg(obj, "frequency")),
			PerPeriod:   intArg(obj, "per_period", 1),
			Target:      intArg(obj, "target", 1),
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: %s[%d] is missing a name", ErrInvalidArgs, name, i)
		}
		if spec.Frequency == "" {
			spec.Frequency = domain.FrequencyDaily
		}
		switch spec.Frequency {
		case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly:
		default:
			return nil, fmt.Errorf("%w: %s[%d] has unknown frequency %q", ErrInvalidArgs, name, i, spec.Frequency)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

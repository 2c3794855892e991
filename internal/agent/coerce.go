package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/robusta-dev/holmes/internal/toolsets"
)

// coerceArguments decodes the LLM-produced argument JSON and shallowly
// coerces each value against the tool's declared parameter schema.
//
// The LLM frequently sends numbers as strings and vice versa; coercion
// smooths over string/number/bool mismatches without attempting deep
// conversion of arrays or objects. Missing required parameters abort the
// call before the tool runs.
func coerceArguments(raw json.RawMessage, params map[string]toolsets.Param) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}

	var missing []string
	for name, param := range params {
		value, ok := args[name]
		if !ok || value == nil {
			if param.Required {
				missing = append(missing, name)
			}
			continue
		}
		coerced, err := coerceValue(value, param.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		args[name] = coerced
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return args, nil
}

func coerceValue(value any, wantType string) (any, error) {
	switch wantType {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
	case "number", "integer":
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", v)
			}
			return f, nil
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v)))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", v)
			}
			return b, nil
		}
	default:
		// Arrays, objects, and untyped parameters pass through as
		// decoded.
		return value, nil
	}
	return nil, fmt.Errorf("expected %s, got %T", wantType, value)
}

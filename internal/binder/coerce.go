package binder

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
)

var (
	patternCacheMu sync.RWMutex
	patternCache   = make(map[string]*regexp.Regexp)
)

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.RLock()
	re, ok := patternCache[pattern]
	patternCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patternCacheMu.Lock()
	patternCache[pattern] = re
	patternCacheMu.Unlock()
	return re, nil
}

// coerceScalar converts a raw JSON-decoded value to the Go representation
// expected for t, enforcing bounds/pattern/enum from spec along the way.
// name and field are used only for error attribution.
func coerceScalar(name, field string, t config.ParameterType, raw interface{}, spec config.ParameterSpec) (interface{}, error) {
	switch t {
	case config.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, errs.Validation(field, "parameter %q must be a string", name)
		}
		if spec.MinLength != nil && len(s) < *spec.MinLength {
			return nil, errs.Validation(field, "parameter %q must be at least %d characters", name, *spec.MinLength)
		}
		if spec.MaxLength != nil && len(s) > *spec.MaxLength {
			return nil, errs.Validation(field, "parameter %q must be at most %d characters", name, *spec.MaxLength)
		}
		if spec.Pattern != "" {
			re, err := compiledPattern(spec.Pattern)
			if err != nil {
				return nil, errs.Validation(field, "parameter %q has an invalid pattern: %v", name, err)
			}
			if !re.MatchString(s) {
				return nil, errs.Validation(field, "parameter %q does not match required pattern", name)
			}
		}
		if err := checkEnum(name, field, spec.Enum, s); err != nil {
			return nil, err
		}
		return s, nil

	case config.TypeInteger:
		n, ok := asFloat(raw)
		if !ok || n != float64(int64(n)) {
			return nil, errs.Validation(field, "parameter %q must be an integer", name)
		}
		if err := checkNumericBounds(name, field, spec, n); err != nil {
			return nil, err
		}
		if err := checkEnum(name, field, spec.Enum, n); err != nil {
			return nil, err
		}
		return int64(n), nil

	case config.TypeFloat:
		n, ok := asFloat(raw)
		if !ok {
			return nil, errs.Validation(field, "parameter %q must be a number", name)
		}
		if err := checkNumericBounds(name, field, spec, n); err != nil {
			return nil, err
		}
		if err := checkEnum(name, field, spec.Enum, n); err != nil {
			return nil, err
		}
		return n, nil

	case config.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, errs.Validation(field, "parameter %q must be a boolean", name)
		}
		return b, nil

	default:
		return nil, errs.Validation(field, "parameter %q has unsupported scalar type %q", name, t)
	}
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

func checkNumericBounds(name, field string, spec config.ParameterSpec, n float64) error {
	if spec.Min != nil && n < *spec.Min {
		return errs.Validation(field, "parameter %q must be >= %v", name, *spec.Min)
	}
	if spec.Max != nil && n > *spec.Max {
		return errs.Validation(field, "parameter %q must be <= %v", name, *spec.Max)
	}
	return nil
}

func checkEnum(name, field string, enum []interface{}, value interface{}) error {
	if len(enum) == 0 {
		return nil
	}
	for _, allowed := range enum {
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
			return nil
		}
	}
	return errs.Validation(field, "parameter %q value is not one of the allowed enum values", name)
}

// pkg/converter/values.go
package converter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// toFloat attempts to convert a value to float64
func toFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, errors.New("nil value")
	}

	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(val)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to number", val)
		}
		return f, nil
	case []byte:
		return toFloat(string(val))
	case time.Time:
		// Dates are not survey measures; expose them as Unix seconds
		return float64(val.Unix()), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// toString converts an interface to string
func toString(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		if math.Trunc(val) == val && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		// Use Sprint as a fallback
		return fmt.Sprintf("%v", val)
	}
}

// FormatNumber renders a number for text exports: integers without a
// fractional part, everything else in shortest round-trip form
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "inf"
		}
		return "-inf"
	}
	return toString(f)
}

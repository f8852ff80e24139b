package daemon

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tphummel/rackops/internal/models"
)

// holds evaluates "metric comparator value". Equality is generic: two values
// that both read as numbers compare numerically, anything else compares as
// text. Ordering coerces both sides to numbers.
func holds(cmp models.Comparator, metric, value any) (bool, error) {
	switch cmp {
	case models.CompareEqual:
		return equal(metric, value), nil
	case models.CompareNotEqual:
		return !equal(metric, value), nil
	case models.CompareGreater, models.CompareLess:
		a, ok := toNumber(metric)
		if !ok {
			return false, fmt.Errorf("metric value %v is not numeric", metric)
		}
		b, ok := toNumber(value)
		if !ok {
			return false, fmt.Errorf("threshold %v is not numeric", value)
		}
		if cmp == models.CompareGreater {
			return a > b, nil
		}
		return a < b, nil
	default:
		return false, fmt.Errorf("unknown comparator %q", cmp)
	}
}

func equal(a, b any) bool {
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if okA && okB {
		return x == y
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

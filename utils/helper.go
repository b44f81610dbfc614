package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal accepts user-formatted numeric strings like:
// - "20000"
// - "20,000"
// - "Rls 1,000,000"
// - "-1,234.50"
//
// Keep digits, '.', and a leading '-' only.
func ParseDecimal(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.NewFromInt(0), nil
		}
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)

		neg := false
		if strings.HasPrefix(s, "-") {
			neg = true
			s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
		}
		// Strip everything except digits and '.'.
		var b strings.Builder
		b.Grow(len(s) + 1)
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if clean == "" {
			return decimal.NewFromInt(0), fmt.Errorf("invalid numeric value %q", v)
		}
		if neg {
			clean = "-" + clean
		}
		return decimal.NewFromString(clean)
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	case nil:
		return decimal.NewFromInt(0), nil
	default:
		return decimal.NewFromInt(0), fmt.Errorf("unsupported numeric type %T", i)
	}
}

// ParseDecimalOrZero is ParseDecimal with the lenient fallback used when
// merging submitted item fields: unparseable input becomes zero.
func ParseDecimalOrZero(i interface{}) decimal.Decimal {
	d, err := ParseDecimal(i)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func UniqueSlice[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

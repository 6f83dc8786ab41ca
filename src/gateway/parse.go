package gateway

import (
	"strconv"
	"strings"
	"time"
)

// Exchange payloads mix numbers and numeric strings for the same field
// across endpoints, so all parsing here is tolerant: garbage becomes the
// zero value instead of an error.

// ParseFloat converts a string/number JSON value to float64.
func ParseFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ParseOptionalFloat is ParseFloat with nil passthrough: nil stays
// absent (0) without being treated as malformed.
func ParseOptionalFloat(value any) float64 {
	if value == nil {
		return 0
	}

	return ParseFloat(value)
}

// ParseInt converts a string/number JSON value to int64.
func ParseInt(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// ParsePercentage reads values like "25", "25%" or 0.25 already in
// fraction form, returning a fraction in [0, 1] for typical inputs.
func ParsePercentage(value any) float64 {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f / 100
	default:
		f := ParseFloat(value)
		if f > 1 {
			return f / 100
		}
		return f
	}
}

// ParseTimestampMS converts a millisecond epoch (string or number) to a
// UTC time. Zero input yields the zero time.
func ParseTimestampMS(value any) time.Time {
	ms := ParseInt(value)
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

// HasAPIError inspects a decoded JSON object for the exchange error
// shape: a negative "code" alongside a "msg".
func HasAPIError(response any) (bool, string, int64) {
	object, ok := response.(map[string]any)
	if !ok {
		return false, "", 0
	}

	rawCode, hasCode := object["code"]
	if !hasCode {
		return false, "", 0
	}

	code := ParseInt(rawCode)
	if code >= 0 {
		return false, "", 0
	}

	message, _ := object["msg"].(string)

	return true, message, code
}

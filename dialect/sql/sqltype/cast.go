package sqltype

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/exo"
)

// Cast methods convert decoded JSON argument values (string, bool, float64,
// json.Number, []any, map[string]any) into driver-level parameters.
// Overflowing or malformed values fail with a Cast error carrying a bounded
// message; the raw value is never echoed back in full.

// Cast converts a value to an integer of the column width.
func (t Int) Cast(v any) (any, error) {
	n, err := castInt64(v, t.TypeString())
	if err != nil {
		return nil, err
	}
	var min, max int64
	switch t.Bits {
	case Bits16:
		min, max = math.MinInt16, math.MaxInt16
	case Bits32:
		min, max = math.MinInt32, math.MaxInt32
	default:
		min, max = math.MinInt64, math.MaxInt64
	}
	if n < min || n > max {
		return nil, exo.Castf(t.TypeString(), "value out of range")
	}
	return n, nil
}

// Cast converts a value to a float.
func (t Float) Cast(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, exo.Castf(t.TypeString(), "not a number")
		}
		return f, nil
	default:
		return nil, exo.Castf(t.TypeString(), "expected a number, got %T", v)
	}
}

// Cast passes a numeric value through as its decimal text form, preserving
// precision beyond float64.
func (t Numeric) Cast(v any) (any, error) {
	switch v := v.(type) {
	case string:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, exo.Castf(t.TypeString(), "not a decimal literal")
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return nil, exo.Castf(t.TypeString(), "expected a decimal, got %T", v)
	}
}

// Cast converts a value to a string, honoring the length bound.
func (t String) Cast(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a string, got %T", v)
	}
	if t.MaxLength != nil && len(s) > *t.MaxLength {
		return nil, exo.Castf(t.TypeString(), "string exceeds maximum length %d", *t.MaxLength)
	}
	return s, nil
}

// Cast converts a value to a boolean.
func (t Boolean) Cast(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a boolean, got %T", v)
	}
	return b, nil
}

// Cast parses a value as a calendar date.
func (t Date) Cast(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a date string, got %T", v)
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, exo.Castf(t.TypeString(), "not a valid date")
	}
	return d, nil
}

// Cast parses a value as a time of day.
func (t Time) Cast(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a time string, got %T", v)
	}
	for _, layout := range []string{"15:04:05.999999999", "15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return nil, exo.Castf(t.TypeString(), "not a valid time")
}

// Cast parses a value as a timestamp.
func (t Timestamp) Cast(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a timestamp string, got %T", v)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return nil, exo.Castf(t.TypeString(), "not a valid timestamp")
}

// Cast parses a value as a UUID.
func (t Uuid) Cast(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a uuid string, got %T", v)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, exo.Castf(t.TypeString(), "not a valid uuid")
	}
	return id, nil
}

// Cast decodes a value as binary data. Strings are treated as base64.
func (t Blob) Cast(v any) (any, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, exo.Castf(t.TypeString(), "not valid base64")
		}
		return data, nil
	default:
		return nil, exo.Castf(t.TypeString(), "expected binary data, got %T", v)
	}
}

// Cast marshals any JSON value into a jsonb parameter.
func (t Json) Cast(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, exo.Castf(t.TypeString(), "not a JSON value")
	}
	return data, nil
}

// Cast checks an enum value is a string; membership is enforced by Postgres.
func (t Enum) Cast(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, exo.Castf(t.Name, "expected a string, got %T", v)
	}
	return s, nil
}

// Cast converts a value to a pgvector literal, checking the dimension.
func (t Vector) Cast(v any) (any, error) {
	elems, ok := v.([]any)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected a float array, got %T", v)
	}
	if len(elems) != t.Size {
		return nil, exo.Castf(t.TypeString(), "expected %d dimensions, got %d", t.Size, len(elems))
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		f, err := (Float{Bits: Bits24}).Cast(e)
		if err != nil {
			return nil, exo.Castf(t.TypeString(), "element %d is not a number", i)
		}
		parts[i] = strconv.FormatFloat(f.(float64), 'f', -1, 32)
	}
	// pgvector's text input format
	return "[" + strings.Join(parts, ",") + "]", nil
}

// Cast converts each element with the inner type. The dialect/sql layer is
// responsible for wrapping the result as an array parameter.
func (t Array) Cast(v any) (any, error) {
	elems, ok := v.([]any)
	if !ok {
		return nil, exo.Castf(t.TypeString(), "expected an array, got %T", v)
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		cast, err := t.Inner.Cast(e)
		if err != nil {
			return nil, err
		}
		out[i] = cast
	}
	return out, nil
}

func castInt64(v any, typ string) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, exo.Castf(typ, "expected an integer, got a fraction")
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, exo.Castf(typ, "value out of range")
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, exo.Castf(typ, "not an integer literal")
		}
		return n, nil
	default:
		return 0, exo.Castf(typ, "expected an integer, got %T", v)
	}
}

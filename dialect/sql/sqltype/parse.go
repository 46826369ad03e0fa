package sqltype

import (
	"strconv"
	"strings"

	"github.com/syssam/exo"
)

// Parse converts a SQL type string, as written in DDL or reported by
// introspection, into its descriptor. Trailing "[]" pairs peel into nested
// Array wrappers: "TEXT[][]" parses as Array{Array{String}}.
func Parse(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "[]") {
		inner, err := Parse(strings.TrimSuffix(s, "[]"))
		if err != nil {
			return nil, err
		}
		return Array{Inner: inner}, nil
	}
	upper := strings.ToUpper(s)

	if idx := strings.IndexByte(upper, '('); idx != -1 {
		close := strings.IndexByte(upper, ')')
		if close < idx {
			return nil, exo.Validationf("malformed type string %q", s)
		}
		name := strings.TrimSpace(upper[:idx])
		params := upper[idx+1 : close]
		rest := strings.TrimSpace(upper[close+1:])
		return parseParameterized(s, name, params, rest)
	}

	switch upper {
	case "SMALLINT", "INT2", "SMALLSERIAL":
		return Int{Bits: Bits16}, nil
	case "INT", "INTEGER", "INT4", "SERIAL":
		return Int{Bits: Bits32}, nil
	case "BIGINT", "INT8", "BIGSERIAL":
		return Int{Bits: Bits64}, nil
	case "REAL", "FLOAT4":
		return Float{Bits: Bits24}, nil
	case "DOUBLE PRECISION", "FLOAT8":
		return Float{Bits: Bits53}, nil
	case "NUMERIC", "DECIMAL":
		return Numeric{}, nil
	case "TEXT", "CHARACTER VARYING", "VARCHAR":
		return String{}, nil
	case "BOOLEAN", "BOOL":
		return Boolean{}, nil
	case "DATE":
		return Date{}, nil
	case "TIME", "TIME WITHOUT TIME ZONE":
		return Time{}, nil
	case "TIMESTAMP", "TIMESTAMP WITHOUT TIME ZONE":
		return Timestamp{}, nil
	case "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		return Timestamp{Timezone: true}, nil
	case "UUID":
		return Uuid{}, nil
	case "BYTEA":
		return Blob{}, nil
	case "JSON", "JSONB":
		return Json{}, nil
	default:
		return nil, exo.Validationf("unknown type string %q", s)
	}
}

func parseParameterized(orig, name, params, rest string) (Type, error) {
	ints, err := splitInts(params)
	if err != nil {
		return nil, exo.Validationf("malformed type string %q", orig)
	}
	switch name {
	case "NUMERIC", "DECIMAL":
		switch len(ints) {
		case 1:
			return Numeric{Precision: &ints[0]}, nil
		case 2:
			return Numeric{Precision: &ints[0], Scale: &ints[1]}, nil
		}
	case "VARCHAR", "CHARACTER VARYING", "CHAR":
		if len(ints) == 1 {
			return String{MaxLength: &ints[0]}, nil
		}
	case "FLOAT":
		if len(ints) == 1 {
			if ints[0] <= 24 {
				return Float{Bits: Bits24}, nil
			}
			return Float{Bits: Bits53}, nil
		}
	case "TIME":
		if len(ints) == 1 {
			return Time{Precision: &ints[0]}, nil
		}
	case "TIMESTAMP":
		if len(ints) == 1 {
			return Timestamp{Precision: &ints[0], Timezone: rest == "WITH TIME ZONE"}, nil
		}
	case "VECTOR":
		if len(ints) == 1 {
			return Vector{Size: ints[0]}, nil
		}
	}
	return nil, exo.Validationf("unknown type string %q", orig)
}

func splitInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

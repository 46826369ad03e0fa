// Package sqltype models the physical Postgres column types the engine can
// store, compare, migrate, and bind parameters for.
//
// Each type is a small descriptor exposing its DDL rendering, its Postgres
// wire type, a stable tag for erased serialization, structural equality, and
// value casting at the SQL parameter boundary. A process-wide registry maps
// each tag to a serializer pair, so a column type can travel inside the
// serialized model artifact as an opaque {tag, bytes} pair.
package sqltype

import (
	"fmt"
	"strings"
)

// IntBits is the storage width of an integer column.
type IntBits int

// Supported integer widths.
const (
	Bits16 IntBits = 16
	Bits32 IntBits = 32
	Bits64 IntBits = 64
)

// FloatBits is the mantissa precision of a float column, following the
// Postgres FLOAT(n) convention: 24 selects REAL, 53 DOUBLE PRECISION.
type FloatBits int

// Supported float precisions.
const (
	Bits24 FloatBits = 24
	Bits53 FloatBits = 53
)

// Type describes a physical column type.
type Type interface {
	// TypeString returns the SQL DDL rendering, e.g. "NUMERIC(10,2)".
	TypeString() string

	// PgType returns the Postgres wire type name, e.g. "int4".
	PgType() string

	// TypeName returns the stable tag used for erased serialization.
	TypeName() string

	// Equal reports structural equality with another type.
	Equal(other Type) bool

	// Clone returns a deep copy of the descriptor.
	Clone() Type

	// Cast converts a decoded JSON argument value into a driver parameter
	// of this type. It returns a CastError for values that do not fit.
	Cast(v any) (any, error)
}

// Int is an integer column of a given width.
type Int struct {
	Bits IntBits
}

// TypeString returns the SQL rendering of the type.
func (t Int) TypeString() string {
	switch t.Bits {
	case Bits16:
		return "SMALLINT"
	case Bits64:
		return "BIGINT"
	default:
		return "INTEGER"
	}
}

// PgType returns the Postgres wire type.
func (t Int) PgType() string {
	switch t.Bits {
	case Bits16:
		return "int2"
	case Bits64:
		return "int8"
	default:
		return "int4"
	}
}

// TypeName returns the serialization tag.
func (t Int) TypeName() string { return "Int" }

// Equal reports structural equality.
func (t Int) Equal(other Type) bool {
	o, ok := other.(Int)
	return ok && o.Bits == t.Bits
}

// Clone returns a copy of the descriptor.
func (t Int) Clone() Type { return t }

// Float is a floating point column.
type Float struct {
	Bits FloatBits
}

// TypeString returns the SQL rendering of the type.
func (t Float) TypeString() string {
	if t.Bits == Bits24 {
		return "REAL"
	}
	return "DOUBLE PRECISION"
}

// PgType returns the Postgres wire type.
func (t Float) PgType() string {
	if t.Bits == Bits24 {
		return "float4"
	}
	return "float8"
}

// TypeName returns the serialization tag.
func (t Float) TypeName() string { return "Float" }

// Equal reports structural equality.
func (t Float) Equal(other Type) bool {
	o, ok := other.(Float)
	return ok && o.Bits == t.Bits
}

// Clone returns a copy of the descriptor.
func (t Float) Clone() Type { return t }

// Numeric is an arbitrary precision decimal column.
type Numeric struct {
	Precision *int
	Scale     *int
}

// TypeString returns the SQL rendering of the type.
func (t Numeric) TypeString() string {
	switch {
	case t.Precision != nil && t.Scale != nil:
		return fmt.Sprintf("NUMERIC(%d,%d)", *t.Precision, *t.Scale)
	case t.Precision != nil:
		return fmt.Sprintf("NUMERIC(%d)", *t.Precision)
	default:
		return "NUMERIC"
	}
}

// PgType returns the Postgres wire type.
func (t Numeric) PgType() string { return "numeric" }

// TypeName returns the serialization tag.
func (t Numeric) TypeName() string { return "Numeric" }

// Equal reports structural equality.
func (t Numeric) Equal(other Type) bool {
	o, ok := other.(Numeric)
	return ok && intPtrEq(t.Precision, o.Precision) && intPtrEq(t.Scale, o.Scale)
}

// Clone returns a copy of the descriptor.
func (t Numeric) Clone() Type {
	return Numeric{Precision: clonePtr(t.Precision), Scale: clonePtr(t.Scale)}
}

// String is a text column, optionally bounded.
type String struct {
	MaxLength *int
}

// TypeString returns the SQL rendering of the type.
func (t String) TypeString() string {
	if t.MaxLength != nil {
		return fmt.Sprintf("VARCHAR(%d)", *t.MaxLength)
	}
	return "TEXT"
}

// PgType returns the Postgres wire type.
func (t String) PgType() string {
	if t.MaxLength != nil {
		return "varchar"
	}
	return "text"
}

// TypeName returns the serialization tag.
func (t String) TypeName() string { return "String" }

// Equal reports structural equality.
func (t String) Equal(other Type) bool {
	o, ok := other.(String)
	return ok && intPtrEq(t.MaxLength, o.MaxLength)
}

// Clone returns a copy of the descriptor.
func (t String) Clone() Type { return String{MaxLength: clonePtr(t.MaxLength)} }

// Boolean is a boolean column.
type Boolean struct{}

// TypeString returns the SQL rendering of the type.
func (Boolean) TypeString() string { return "BOOLEAN" }

// PgType returns the Postgres wire type.
func (Boolean) PgType() string { return "bool" }

// TypeName returns the serialization tag.
func (Boolean) TypeName() string { return "Boolean" }

// Equal reports structural equality.
func (Boolean) Equal(other Type) bool {
	_, ok := other.(Boolean)
	return ok
}

// Clone returns a copy of the descriptor.
func (t Boolean) Clone() Type { return t }

// Date is a calendar date column.
type Date struct{}

// TypeString returns the SQL rendering of the type.
func (Date) TypeString() string { return "DATE" }

// PgType returns the Postgres wire type.
func (Date) PgType() string { return "date" }

// TypeName returns the serialization tag.
func (Date) TypeName() string { return "Date" }

// Equal reports structural equality.
func (Date) Equal(other Type) bool {
	_, ok := other.(Date)
	return ok
}

// Clone returns a copy of the descriptor.
func (t Date) Clone() Type { return t }

// Time is a time-of-day column.
type Time struct {
	Precision *int
}

// TypeString returns the SQL rendering of the type.
func (t Time) TypeString() string {
	if t.Precision != nil {
		return fmt.Sprintf("TIME(%d)", *t.Precision)
	}
	return "TIME"
}

// PgType returns the Postgres wire type.
func (Time) PgType() string { return "time" }

// TypeName returns the serialization tag.
func (Time) TypeName() string { return "Time" }

// Equal reports structural equality.
func (t Time) Equal(other Type) bool {
	o, ok := other.(Time)
	return ok && intPtrEq(t.Precision, o.Precision)
}

// Clone returns a copy of the descriptor.
func (t Time) Clone() Type { return Time{Precision: clonePtr(t.Precision)} }

// Timestamp is a point-in-time column, with or without a timezone.
type Timestamp struct {
	Precision *int
	Timezone  bool
}

// TypeString returns the SQL rendering of the type.
func (t Timestamp) TypeString() string {
	var sb strings.Builder
	sb.WriteString("TIMESTAMP")
	if t.Precision != nil {
		fmt.Fprintf(&sb, "(%d)", *t.Precision)
	}
	if t.Timezone {
		sb.WriteString(" WITH TIME ZONE")
	} else {
		sb.WriteString(" WITHOUT TIME ZONE")
	}
	return sb.String()
}

// PgType returns the Postgres wire type.
func (t Timestamp) PgType() string {
	if t.Timezone {
		return "timestamptz"
	}
	return "timestamp"
}

// TypeName returns the serialization tag.
func (Timestamp) TypeName() string { return "Timestamp" }

// Equal reports structural equality.
func (t Timestamp) Equal(other Type) bool {
	o, ok := other.(Timestamp)
	return ok && t.Timezone == o.Timezone && intPtrEq(t.Precision, o.Precision)
}

// Clone returns a copy of the descriptor.
func (t Timestamp) Clone() Type {
	return Timestamp{Precision: clonePtr(t.Precision), Timezone: t.Timezone}
}

// Uuid is a UUID column.
type Uuid struct{}

// TypeString returns the SQL rendering of the type.
func (Uuid) TypeString() string { return "UUID" }

// PgType returns the Postgres wire type.
func (Uuid) PgType() string { return "uuid" }

// TypeName returns the serialization tag.
func (Uuid) TypeName() string { return "Uuid" }

// Equal reports structural equality.
func (Uuid) Equal(other Type) bool {
	_, ok := other.(Uuid)
	return ok
}

// Clone returns a copy of the descriptor.
func (t Uuid) Clone() Type { return t }

// Blob is a binary column.
type Blob struct{}

// TypeString returns the SQL rendering of the type.
func (Blob) TypeString() string { return "BYTEA" }

// PgType returns the Postgres wire type.
func (Blob) PgType() string { return "bytea" }

// TypeName returns the serialization tag.
func (Blob) TypeName() string { return "Blob" }

// Equal reports structural equality.
func (Blob) Equal(other Type) bool {
	_, ok := other.(Blob)
	return ok
}

// Clone returns a copy of the descriptor.
func (t Blob) Clone() Type { return t }

// Json is a JSONB column.
type Json struct{}

// TypeString returns the SQL rendering of the type.
func (Json) TypeString() string { return "JSONB" }

// PgType returns the Postgres wire type.
func (Json) PgType() string { return "jsonb" }

// TypeName returns the serialization tag.
func (Json) TypeName() string { return "Json" }

// Equal reports structural equality.
func (Json) Equal(other Type) bool {
	_, ok := other.(Json)
	return ok
}

// Clone returns a copy of the descriptor.
func (t Json) Clone() Type { return t }

// Enum is a named Postgres enum type.
type Enum struct {
	Name string
}

// TypeString returns the SQL rendering of the type.
func (t Enum) TypeString() string { return quoteIdent(t.Name) }

// PgType returns the Postgres wire type.
func (t Enum) PgType() string { return t.Name }

// TypeName returns the serialization tag.
func (Enum) TypeName() string { return "Enum" }

// Equal reports structural equality.
func (t Enum) Equal(other Type) bool {
	o, ok := other.(Enum)
	return ok && o.Name == t.Name
}

// Clone returns a copy of the descriptor.
func (t Enum) Clone() Type { return t }

// Vector is a pgvector column of a fixed dimension.
type Vector struct {
	Size int
}

// TypeString returns the SQL rendering of the type.
func (t Vector) TypeString() string { return fmt.Sprintf("Vector(%d)", t.Size) }

// PgType returns the Postgres wire type.
func (Vector) PgType() string { return "vector" }

// TypeName returns the serialization tag.
func (Vector) TypeName() string { return "Vector" }

// Equal reports structural equality.
func (t Vector) Equal(other Type) bool {
	o, ok := other.(Vector)
	return ok && o.Size == t.Size
}

// Clone returns a copy of the descriptor.
func (t Vector) Clone() Type { return t }

// Array is an array column over an inner type. Multi-dimensional arrays nest.
type Array struct {
	Inner Type
}

// TypeString returns the SQL rendering of the type.
func (t Array) TypeString() string { return t.Inner.TypeString() + "[]" }

// PgType returns the Postgres wire type.
func (t Array) PgType() string { return "_" + t.Inner.PgType() }

// TypeName returns the serialization tag.
func (Array) TypeName() string { return "Array" }

// Equal reports structural equality.
func (t Array) Equal(other Type) bool {
	o, ok := other.(Array)
	return ok && t.Inner.Equal(o.Inner)
}

// Clone returns a copy of the descriptor.
func (t Array) Clone() Type { return Array{Inner: t.Inner.Clone()} }

func intPtrEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

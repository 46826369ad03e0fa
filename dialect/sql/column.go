package sql

import (
	"reflect"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/exo/dialect/sql/schema"
)

// Column is a concrete SQL value expression: something that can appear in a
// select list, a predicate operand, or an insert/update value position.
type Column interface {
	// Build renders the expression.
	Build(b *Builder)
}

// Physical references a physical column and renders "table"."column".
type Physical struct {
	Col *schema.Column
}

// Build renders the expression.
func (c Physical) Build(b *Builder) {
	b.Quote(c.Col.TableName)
	b.WriteByte('.')
	b.Quote(c.Col.Name)
}

// Param is a typed SQL parameter.
type Param struct {
	Value any
}

// Build renders the expression.
func (c Param) Build(b *Builder) {
	b.Arg(c.Value)
}

// Null renders NULL.
type Null struct{}

// Build renders the expression.
func (Null) Build(b *Builder) {
	b.WriteString("NULL")
}

// DefaultVal renders DEFAULT; it stands in for columns a multi-row insert
// leaves unspecified.
type DefaultVal struct{}

// Build renders the expression.
func (DefaultVal) Build(b *Builder) {
	b.WriteString("DEFAULT")
}

// ArrayWrapper selects how an array parameter participates in a comparison.
type ArrayWrapper int

// Array wrappers.
const (
	// WrapperAny renders ANY($n).
	WrapperAny ArrayWrapper = iota
	// WrapperAll renders ALL($n).
	WrapperAll
	// WrapperNone renders the bare array parameter.
	WrapperNone
)

// ArrayParam is an array-valued parameter with an optional ANY/ALL wrapper.
type ArrayParam struct {
	Values  []any
	Wrapper ArrayWrapper
}

// Build renders the expression.
func (c ArrayParam) Build(b *Builder) {
	switch c.Wrapper {
	case WrapperAny:
		b.WriteString("ANY(")
		b.Arg(pq.Array(c.Values))
		b.WriteByte(')')
	case WrapperAll:
		b.WriteString("ALL(")
		b.Arg(pq.Array(c.Values))
		b.WriteByte(')')
	default:
		b.Arg(pq.Array(c.Values))
	}
}

// SubSelect wraps a select so it can be used as a value or as the right-hand
// side of an IN predicate.
type SubSelect struct {
	Select *Select
}

// Build renders the expression.
func (c SubSelect) Build(b *Builder) {
	b.WriteByte('(')
	c.Select.Build(b)
	b.WriteByte(')')
}

// Star renders *.
type Star struct{}

// Build renders the expression.
func (Star) Build(b *Builder) {
	b.WriteByte('*')
}

// JsonObjectElem is one key of a JsonObject.
type JsonObjectElem struct {
	Key    string
	Column Column
}

// JsonObject renders json_build_object('k1', v1, ...): one JSON object per
// result row.
type JsonObject struct {
	Elems []JsonObjectElem
}

// Build renders the expression.
func (c JsonObject) Build(b *Builder) {
	b.WriteString("json_build_object(")
	for i, e := range c.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("'" + strings.ReplaceAll(e.Key, "'", "''") + "'")
		b.WriteString(", ")
		e.Column.Build(b)
	}
	b.WriteByte(')')
}

// JsonAgg renders coalesce(json_agg(inner), '[]'::json): the aggregated JSON
// array form of a selection, empty array when no rows match.
type JsonAgg struct {
	Column Column
}

// Build renders the expression.
func (c JsonAgg) Build(b *Builder) {
	b.WriteString("coalesce(json_agg(")
	c.Column.Build(b)
	b.WriteString("), '[]'::json)")
}

// Constant is a string literal rendered inline, used for fixed selection
// values such as __typename.
type Constant struct {
	Value string
}

// Build renders the expression.
func (c Constant) Build(b *Builder) {
	b.WriteString("'" + strings.ReplaceAll(c.Value, "'", "''") + "'")
}

// Function applies a SQL function to a single argument, e.g. COUNT.
type Function struct {
	Name string
	Arg  Column
}

// Build renders the expression.
func (c Function) Build(b *Builder) {
	b.WriteString(c.Name)
	b.WriteByte('(')
	c.Arg.Build(b)
	b.WriteByte(')')
}

// TemplateParam is a placeholder inside a template operation. It is resolved
// from a prior step's result set by (step id, column index) before the
// operation renders; a TemplateParam never reaches a Builder.
type TemplateParam struct {
	StepID   StepID
	ColIndex int
}

// Build panics: template parameters must be resolved first.
func (TemplateParam) Build(*Builder) {
	panic("exo: unresolved template parameter")
}

// columnsEqual reports structural equality of two concrete columns. It backs
// the Eq reduction: structurally equal operands reduce to TRUE.
func columnsEqual(a, b Column) bool {
	switch a := a.(type) {
	case Physical:
		if b, ok := b.(Physical); ok {
			return a.Col == b.Col
		}
	case Param:
		if b, ok := b.(Param); ok {
			return reflect.DeepEqual(a.Value, b.Value)
		}
	case Null:
		_, ok := b.(Null)
		return ok
	case Constant:
		if b, ok := b.(Constant); ok {
			return a == b
		}
	}
	return false
}

// paramsEqual reports whether both columns are parameter literals, and if so
// whether they are equal. Only parameter pairs can decide a predicate before
// reaching the database.
func paramsEqual(a, b Column) (equal, bothParams bool) {
	pa, ok := a.(Param)
	if !ok {
		return false, false
	}
	pb, ok := b.(Param)
	if !ok {
		return false, false
	}
	return reflect.DeepEqual(pa.Value, pb.Value), true
}

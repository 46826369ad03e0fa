package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/dialect/sql/sqltype"
)

func testColumn(table, name string) *schema.Column {
	return &schema.Column{TableName: table, Name: name, Type: sqltype.Int{Bits: sqltype.Bits32}}
}

func TestPredicateSimplification(t *testing.T) {
	col := Physical{Col: testColumn("concerts", "id")}
	leaf := Eq(col, Param{Value: 5})

	tests := []struct {
		name string
		got  *Predicate
		want *Predicate
	}{
		{name: "and true x", got: And(True(), leaf), want: leaf},
		{name: "and x true", got: And(leaf, True()), want: leaf},
		{name: "and false x", got: And(False(), leaf), want: False()},
		{name: "or false x", got: Or(False(), leaf), want: leaf},
		{name: "or x false", got: Or(leaf, False()), want: leaf},
		{name: "or true x", got: Or(True(), leaf), want: True()},
		{name: "not true", got: Not(True()), want: False()},
		{name: "not false", got: Not(False()), want: True()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestPredicateEqReduction(t *testing.T) {
	col := Physical{Col: testColumn("concerts", "id")}

	// Structurally equal operands reduce to TRUE.
	assert.Equal(t, True(), Eq(col, col))
	assert.Equal(t, True(), Eq(Param{Value: "a"}, Param{Value: "a"}))

	// Unequal parameter literals reduce to FALSE.
	assert.Equal(t, False(), Eq(Param{Value: "a"}, Param{Value: "b"}))

	// A column against a parameter stays symbolic.
	p := Eq(col, Param{Value: 5})
	require.Equal(t, OpEq, p.Op)
}

func TestPredicateNotPushesIntoLeaves(t *testing.T) {
	col := Physical{Col: testColumn("concerts", "id")}
	param := Param{Value: 5}

	tests := []struct {
		name string
		in   *Predicate
		want PredicateOp
	}{
		{name: "not eq", in: &Predicate{Op: OpEq, L: col, R: param}, want: OpNeq},
		{name: "not neq", in: &Predicate{Op: OpNeq, L: col, R: param}, want: OpEq},
		{name: "not lt", in: Lt(col, param), want: OpGte},
		{name: "not lte", in: Lte(col, param), want: OpGt},
		{name: "not gt", in: Gt(col, param), want: OpLte},
		{name: "not gte", in: Gte(col, param), want: OpLt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Not(tt.in).Op)
		})
	}

	// Double negation cancels.
	inner := StringLike(col, param, true)
	assert.Equal(t, inner, Not(Not(inner)))
}

func TestPredicateBuild(t *testing.T) {
	title := Physical{Col: testColumn("concerts", "title")}

	tests := []struct {
		name string
		p    *Predicate
		sql  string
		args []any
	}{
		{
			name: "eq",
			p:    Eq(title, Param{Value: "x"}),
			sql:  `"concerts"."title" = $1`,
			args: []any{"x"},
		},
		{
			name: "like case sensitive",
			p:    StringLike(title, Param{Value: "%x%"}, true),
			sql:  `"concerts"."title" LIKE $1`,
			args: []any{"%x%"},
		},
		{
			name: "ilike",
			p:    StringLike(title, Param{Value: "%x%"}, false),
			sql:  `"concerts"."title" ILIKE $1`,
			args: []any{"%x%"},
		},
		{
			name: "starts with",
			p:    StringStartsWith(title, Param{Value: "x"}),
			sql:  `"concerts"."title" LIKE $1 || '%'`,
			args: []any{"x"},
		},
		{
			name: "ends with",
			p:    StringEndsWith(title, Param{Value: "x"}),
			sql:  `"concerts"."title" LIKE '%' || $1`,
			args: []any{"x"},
		},
		{
			name: "and",
			p:    And(Eq(title, Param{Value: "a"}), Neq(title, Param{Value: "b"})),
			sql:  `("concerts"."title" = $1 AND "concerts"."title" <> $2)`,
			args: []any{"a", "b"},
		},
		{
			name: "not composite",
			p:    Not(And(Eq(title, Param{Value: "a"}), Eq(title, Param{Value: "b"}))),
			sql:  `NOT(("concerts"."title" = $1 AND "concerts"."title" = $2))`,
			args: []any{"a", "b"},
		},
		{
			name: "json contains",
			p:    JsonContains(title, Param{Value: []byte(`{"a":1}`)}),
			sql:  `"concerts"."title" @> $1`,
			args: []any{[]byte(`{"a":1}`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Builder
			tt.p.Build(&b)
			assert.Equal(t, tt.sql, b.String())
			assert.Equal(t, tt.args, b.Args())
		})
	}
}

package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo/access"
	"github.com/syssam/exo/dialect/sql"
	dbschema "github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
	"github.com/syssam/exo/schema"
)

func contextSel(path ...string) *schema.AccessExpr {
	return &schema.AccessExpr{Kind: schema.AccessContext, Context: path}
}

func literal(v any) *schema.AccessExpr {
	return &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: v}
}

func column(links ...sqlgraph.ColumnPathLink) *schema.AccessExpr {
	return &schema.AccessExpr{Kind: schema.AccessColumn, Column: links}
}

func relational(op sql.PredicateOp, l, r *schema.AccessExpr) *schema.AccessExpr {
	return &schema.AccessExpr{Kind: schema.AccessRelational, Op: op, Left: l, Right: r}
}

func logical(op sql.PredicateOp, l, r *schema.AccessExpr) *schema.AccessExpr {
	return &schema.AccessExpr{Kind: schema.AccessLogical, Op: op, Left: l, Right: r}
}

// adminRule is AuthContext.role == "ADMIN".
func adminRule() *schema.AccessExpr {
	return relational(sql.OpEq, contextSel("AuthContext", "role"), literal("ADMIN"))
}

func TestSolveLiteralComparisons(t *testing.T) {
	tests := []struct {
		name string
		ctx  map[string]any
		expr *schema.AccessExpr
		want *sqlgraph.Predicate
	}{
		{
			name: "matching role grants",
			ctx:  map[string]any{"AuthContext": map[string]any{"role": "ADMIN"}},
			expr: adminRule(),
			want: sqlgraph.True(),
		},
		{
			name: "mismatching role denies",
			ctx:  map[string]any{"AuthContext": map[string]any{"role": "USER"}},
			expr: adminRule(),
			want: sqlgraph.False(),
		},
		{
			name: "missing context selection denies",
			ctx:  map[string]any{},
			expr: adminRule(),
			want: sqlgraph.False(),
		},
		{
			name: "numeric ordering",
			ctx:  map[string]any{"AuthContext": map[string]any{"level": int64(5)}},
			expr: relational(sql.OpGte, contextSel("AuthContext", "level"), literal(int64(3))),
			want: sqlgraph.True(),
		},
		{
			name: "neq on literals",
			ctx:  map[string]any{"AuthContext": map[string]any{"role": "USER"}},
			expr: relational(sql.OpNeq, contextSel("AuthContext", "role"), literal("ADMIN")),
			want: sqlgraph.True(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := access.Solve(tt.expr, tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSolveResidualPredicate(t *testing.T) {
	owner := sqlgraph.ColumnPathLink{SelfColumn: dbschema.ColumnID{Table: 0, Index: 2}}
	// self.owner == AuthContext.userId
	expr := relational(sql.OpEq, column(owner), contextSel("AuthContext", "userId"))

	got, err := access.Solve(expr, map[string]any{"AuthContext": map[string]any{"userId": int64(42)}})
	require.NoError(t, err)
	require.Equal(t, sql.OpEq, got.Op)
	assert.Equal(t, sqlgraph.PhysicalPath(owner), got.L)
	assert.Equal(t, sqlgraph.ParamPath(int64(42)), got.R)
}

func TestSolveLogicalShortCircuit(t *testing.T) {
	owner := sqlgraph.ColumnPathLink{SelfColumn: dbschema.ColumnID{Table: 0, Index: 2}}
	residual := relational(sql.OpEq, column(owner), contextSel("AuthContext", "userId"))
	adminCtx := map[string]any{"AuthContext": map[string]any{"role": "ADMIN", "userId": int64(1)}}
	userCtx := map[string]any{"AuthContext": map[string]any{"role": "USER", "userId": int64(1)}}

	// ADMIN short-circuits the disjunction to a full grant: no residual.
	got, err := access.Solve(logical(sql.OpOr, adminRule(), residual), adminCtx)
	require.NoError(t, err)
	assert.True(t, got.IsTrue())

	// USER leaves only the residual branch.
	got, err = access.Solve(logical(sql.OpOr, adminRule(), residual), userCtx)
	require.NoError(t, err)
	assert.Equal(t, sql.OpEq, got.Op)

	// A conjunction with a failing literal denies regardless of the column
	// branch.
	got, err = access.Solve(logical(sql.OpAnd, adminRule(), residual), userCtx)
	require.NoError(t, err)
	assert.True(t, got.IsFalse())
}

func TestSolveNotAndBoolean(t *testing.T) {
	userCtx := map[string]any{"AuthContext": map[string]any{"role": "USER"}}

	not := &schema.AccessExpr{Kind: schema.AccessLogical, Op: sql.OpNot, Left: adminRule()}
	got, err := access.Solve(not, userCtx)
	require.NoError(t, err)
	assert.True(t, got.IsTrue())

	boolTrue := &schema.AccessExpr{Kind: schema.AccessBoolean, Value: true}
	got, err = access.Solve(boolTrue, nil)
	require.NoError(t, err)
	assert.True(t, got.IsTrue())
}

func TestSolveNilExpressionDenies(t *testing.T) {
	got, err := access.Solve(nil, map[string]any{})
	require.NoError(t, err)
	assert.True(t, got.IsFalse())
}

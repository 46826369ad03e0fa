// Package access evaluates access expressions against the request context.
//
// The solver is a partial evaluator: context selections reduce to literal
// values, column references stay symbolic, and relational nodes over two
// literals decide immediately. The output is one of three shapes — the TRUE
// predicate (grant, no residual), the FALSE predicate (deny; callers must
// short-circuit and issue no SQL), or a residual predicate the caller
// conjoins with the operation's own WHERE clause.
package access

import (
	"fmt"
	"reflect"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
	"github.com/syssam/exo/schema"
)

// Solve reduces an access expression against a request context. A nil
// expression denies: absent access rules grant nothing.
func Solve(expr *schema.AccessExpr, ctx map[string]any) (*sqlgraph.Predicate, error) {
	if expr == nil {
		return sqlgraph.False(), nil
	}
	r, err := reduce(expr, ctx)
	if err != nil {
		return nil, err
	}
	p, ok := r.(reducedPredicate)
	if !ok {
		return nil, exo.Internalf("access expression did not reduce to a predicate")
	}
	return p.p, nil
}

// reduced is the result of partially evaluating one node: a literal value,
// a symbolic column path, or a predicate.
type reduced interface {
	reduced()
}

type reducedValue struct {
	v any
}

type reducedColumn struct {
	path sqlgraph.ColumnPath
}

type reducedPredicate struct {
	p *sqlgraph.Predicate
}

func (reducedValue) reduced()     {}
func (reducedColumn) reduced()    {}
func (reducedPredicate) reduced() {}

func reduce(expr *schema.AccessExpr, ctx map[string]any) (reduced, error) {
	switch expr.Kind {
	case schema.AccessContext:
		return reducedValue{v: selectContext(ctx, expr.Context)}, nil
	case schema.AccessColumn:
		return reducedColumn{path: sqlgraph.PhysicalPath(expr.Column...)}, nil
	case schema.AccessLiteral:
		return reducedValue{v: expr.Literal}, nil
	case schema.AccessBoolean:
		if expr.Value {
			return reducedPredicate{p: sqlgraph.True()}, nil
		}
		return reducedPredicate{p: sqlgraph.False()}, nil
	case schema.AccessRelational:
		return reduceRelational(expr, ctx)
	case schema.AccessLogical:
		return reduceLogical(expr, ctx)
	default:
		return nil, exo.Internalf("unknown access expression kind %d", expr.Kind)
	}
}

// selectContext walks the selection path into the context object. A missing
// key reduces to nil, which compares unequal to every non-nil literal.
func selectContext(ctx map[string]any, path []string) any {
	var cur any = ctx
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func reduceRelational(expr *schema.AccessExpr, ctx map[string]any) (reduced, error) {
	left, err := reduce(expr.Left, ctx)
	if err != nil {
		return nil, err
	}
	right, err := reduce(expr.Right, ctx)
	if err != nil {
		return nil, err
	}

	lv, lIsValue := left.(reducedValue)
	rv, rIsValue := right.(reducedValue)

	// Both sides literal: decide now.
	if lIsValue && rIsValue {
		decided, err := compareLiterals(expr.Op, lv.v, rv.v)
		if err != nil {
			return nil, err
		}
		if decided {
			return reducedPredicate{p: sqlgraph.True()}, nil
		}
		return reducedPredicate{p: sqlgraph.False()}, nil
	}

	l, err := operandPath(left)
	if err != nil {
		return nil, err
	}
	r, err := operandPath(right)
	if err != nil {
		return nil, err
	}
	return reducedPredicate{p: relationalPredicate(expr.Op, l, r)}, nil
}

func operandPath(r reduced) (sqlgraph.ColumnPath, error) {
	switch r := r.(type) {
	case reducedColumn:
		return r.path, nil
	case reducedValue:
		if r.v == nil {
			return sqlgraph.NullPath(), nil
		}
		return sqlgraph.ParamPath(r.v), nil
	default:
		return sqlgraph.ColumnPath{}, exo.Internalf("operand of a relational access operator cannot be a predicate")
	}
}

func relationalPredicate(op sql.PredicateOp, l, r sqlgraph.ColumnPath) *sqlgraph.Predicate {
	switch op {
	case sql.OpEq:
		return sqlgraph.Eq(l, r)
	case sql.OpNeq:
		return sqlgraph.Neq(l, r)
	case sql.OpLt:
		return sqlgraph.Lt(l, r)
	case sql.OpLte:
		return sqlgraph.Lte(l, r)
	case sql.OpGt:
		return sqlgraph.Gt(l, r)
	case sql.OpGte:
		return sqlgraph.Gte(l, r)
	case sql.OpIn:
		return sqlgraph.In(l, r)
	default:
		return &sqlgraph.Predicate{Op: op, L: l, R: r}
	}
}

func reduceLogical(expr *schema.AccessExpr, ctx map[string]any) (reduced, error) {
	switch expr.Op {
	case sql.OpNot:
		inner, err := reduce(expr.Left, ctx)
		if err != nil {
			return nil, err
		}
		p, ok := inner.(reducedPredicate)
		if !ok {
			return nil, exo.Internalf("operand of 'not' is not a predicate")
		}
		return reducedPredicate{p: sqlgraph.Not(p.p)}, nil
	case sql.OpAnd, sql.OpOr:
		left, err := reduce(expr.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := reduce(expr.Right, ctx)
		if err != nil {
			return nil, err
		}
		lp, ok := left.(reducedPredicate)
		if !ok {
			return nil, exo.Internalf("operand of a logical access operator is not a predicate")
		}
		rp, ok := right.(reducedPredicate)
		if !ok {
			return nil, exo.Internalf("operand of a logical access operator is not a predicate")
		}
		if expr.Op == sql.OpAnd {
			return reducedPredicate{p: sqlgraph.And(lp.p, rp.p)}, nil
		}
		return reducedPredicate{p: sqlgraph.Or(lp.p, rp.p)}, nil
	default:
		return nil, exo.Internalf("unknown logical access operator %d", expr.Op)
	}
}

// compareLiterals decides a relational operator over two literal values.
func compareLiterals(op sql.PredicateOp, a, b any) (bool, error) {
	switch op {
	case sql.OpEq:
		return literalsEqual(a, b), nil
	case sql.OpNeq:
		return !literalsEqual(a, b), nil
	case sql.OpLt, sql.OpLte, sql.OpGt, sql.OpGte:
		cmp, err := orderLiterals(a, b)
		if err != nil {
			return false, err
		}
		switch op {
		case sql.OpLt:
			return cmp < 0, nil
		case sql.OpLte:
			return cmp <= 0, nil
		case sql.OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case sql.OpIn:
		list, ok := b.([]any)
		if !ok {
			return false, exo.Validationf("right operand of 'in' is not a list")
		}
		for _, item := range list {
			if literalsEqual(a, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, exo.Internalf("access operator %d cannot decide two literals", op)
	}
}

func literalsEqual(a, b any) bool {
	if na, aNum := asFloat(a); aNum {
		if nb, bNum := asFloat(b); bNum {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func orderLiterals(a, b any) (int, error) {
	na, aNum := asFloat(a)
	nb, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case na < nb:
			return -1, nil
		case na > nb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, exo.Validationf("cannot order %s and %s", typeName(a), typeName(b))
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

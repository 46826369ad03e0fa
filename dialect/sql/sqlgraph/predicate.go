package sqlgraph

import (
	"github.com/syssam/exo/dialect/sql"
)

// Predicate is a boolean expression over column paths: the abstract
// counterpart of dialect/sql.Predicate, shared by filter arguments and
// access expressions. Use the constructors; they perform the mandatory
// simplifications the access solver's short-circuiting relies on.
type Predicate struct {
	Op sql.PredicateOp

	// L and R are the operands of relational leaves.
	L, R ColumnPath

	// CaseSensitive applies to StringLike.
	CaseSensitive bool

	// Left and Right are the operands of And/Or; Not uses Left only.
	Left, Right *Predicate
}

// True returns the TRUE predicate.
func True() *Predicate { return &Predicate{Op: sql.OpTrue} }

// False returns the FALSE predicate.
func False() *Predicate { return &Predicate{Op: sql.OpFalse} }

// IsTrue reports whether the predicate is the TRUE literal.
func (p *Predicate) IsTrue() bool { return p != nil && p.Op == sql.OpTrue }

// IsFalse reports whether the predicate is the FALSE literal.
func (p *Predicate) IsFalse() bool { return p != nil && p.Op == sql.OpFalse }

// Eq compares two paths, reducing to TRUE when they are structurally equal
// and to FALSE when they are unequal parameter literals.
func Eq(l, r ColumnPath) *Predicate {
	if l.Equal(r) {
		return True()
	}
	if equal, bothParams := l.ParamEq(r); bothParams && !equal {
		return False()
	}
	return &Predicate{Op: sql.OpEq, L: l, R: r}
}

// Neq is the negation of Eq.
func Neq(l, r ColumnPath) *Predicate { return Not(Eq(l, r)) }

// Lt compares two paths with <.
func Lt(l, r ColumnPath) *Predicate { return &Predicate{Op: sql.OpLt, L: l, R: r} }

// Lte compares two paths with <=.
func Lte(l, r ColumnPath) *Predicate { return &Predicate{Op: sql.OpLte, L: l, R: r} }

// Gt compares two paths with >.
func Gt(l, r ColumnPath) *Predicate { return &Predicate{Op: sql.OpGt, L: l, R: r} }

// Gte compares two paths with >=.
func Gte(l, r ColumnPath) *Predicate { return &Predicate{Op: sql.OpGte, L: l, R: r} }

// In tests membership.
func In(l, r ColumnPath) *Predicate { return &Predicate{Op: sql.OpIn, L: l, R: r} }

// StringLike matches a pattern, case sensitive or not.
func StringLike(l, r ColumnPath, caseSensitive bool) *Predicate {
	return &Predicate{Op: sql.OpStringLike, L: l, R: r, CaseSensitive: caseSensitive}
}

// StringStartsWith matches a prefix.
func StringStartsWith(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpStringStartsWith, L: l, R: r}
}

// StringEndsWith matches a suffix.
func StringEndsWith(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpStringEndsWith, L: l, R: r}
}

// JsonContains tests l @> r.
func JsonContains(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpJsonContains, L: l, R: r}
}

// JsonContainedBy tests l <@ r.
func JsonContainedBy(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpJsonContainedBy, L: l, R: r}
}

// JsonMatchKey tests l ? r.
func JsonMatchKey(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpJsonMatchKey, L: l, R: r}
}

// JsonMatchAnyKey tests l ?| r.
func JsonMatchAnyKey(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpJsonMatchAnyKey, L: l, R: r}
}

// JsonMatchAllKeys tests l ?& r.
func JsonMatchAllKeys(l, r ColumnPath) *Predicate {
	return &Predicate{Op: sql.OpJsonMatchAllKeys, L: l, R: r}
}

// And conjoins two predicates with short-circuit simplification.
func And(l, r *Predicate) *Predicate {
	switch {
	case l.IsFalse() || r.IsFalse():
		return False()
	case l.IsTrue():
		return r
	case r.IsTrue():
		return l
	default:
		return &Predicate{Op: sql.OpAnd, Left: l, Right: r}
	}
}

// Or disjoins two predicates with short-circuit simplification.
func Or(l, r *Predicate) *Predicate {
	switch {
	case l.IsTrue() || r.IsTrue():
		return True()
	case l.IsFalse():
		return r
	case r.IsFalse():
		return l
	default:
		return &Predicate{Op: sql.OpOr, Left: l, Right: r}
	}
}

// Not negates a predicate, inverting relational leaves directly.
func Not(p *Predicate) *Predicate {
	switch p.Op {
	case sql.OpTrue:
		return False()
	case sql.OpFalse:
		return True()
	case sql.OpEq:
		return &Predicate{Op: sql.OpNeq, L: p.L, R: p.R}
	case sql.OpNeq:
		return &Predicate{Op: sql.OpEq, L: p.L, R: p.R}
	case sql.OpLt:
		return &Predicate{Op: sql.OpGte, L: p.L, R: p.R}
	case sql.OpLte:
		return &Predicate{Op: sql.OpGt, L: p.L, R: p.R}
	case sql.OpGt:
		return &Predicate{Op: sql.OpLte, L: p.L, R: p.R}
	case sql.OpGte:
		return &Predicate{Op: sql.OpLt, L: p.L, R: p.R}
	case sql.OpNot:
		return p.Left
	default:
		return &Predicate{Op: sql.OpNot, Left: p}
	}
}

// ColumnPaths returns the physical paths referenced by the predicate's
// leaves, in visit order. The select transformer uses them to compute the
// tables its join must introduce.
func (p *Predicate) ColumnPaths() []ColumnPath {
	if p == nil {
		return nil
	}
	var out []ColumnPath
	p.walk(func(n *Predicate) {
		if n.Left != nil || n.Right != nil {
			return
		}
		if n.L.Kind == PathPhysical {
			out = append(out, n.L)
		}
		if n.R.Kind == PathPhysical {
			out = append(out, n.R)
		}
	})
	return out
}

func (p *Predicate) walk(f func(*Predicate)) {
	f(p)
	if p.Left != nil {
		p.Left.walk(f)
	}
	if p.Right != nil {
		p.Right.walk(f)
	}
}

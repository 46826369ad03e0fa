package sql

// PredicateOp enumerates the predicate node kinds.
type PredicateOp int

// Predicate operators.
const (
	OpTrue PredicateOp = iota
	OpFalse
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpStringLike
	OpStringStartsWith
	OpStringEndsWith
	OpJsonContains
	OpJsonContainedBy
	OpJsonMatchKey
	OpJsonMatchAnyKey
	OpJsonMatchAllKeys
	OpAnd
	OpOr
	OpNot
)

// Predicate is a boolean expression over concrete columns, used in WHERE
// clauses. Use the constructors: they perform the boolean-algebra
// simplifications the access solver relies on.
type Predicate struct {
	Op PredicateOp

	// L and R are the operands of relational leaves.
	L, R Column

	// CaseSensitive applies to OpStringLike: LIKE vs ILIKE.
	CaseSensitive bool

	// Left and Right are the operands of And/Or; Not uses Left only.
	Left, Right *Predicate
}

// True returns the TRUE predicate.
func True() *Predicate { return &Predicate{Op: OpTrue} }

// False returns the FALSE predicate.
func False() *Predicate { return &Predicate{Op: OpFalse} }

// IsTrue reports whether the predicate is the TRUE literal.
func (p *Predicate) IsTrue() bool { return p != nil && p.Op == OpTrue }

// IsFalse reports whether the predicate is the FALSE literal.
func (p *Predicate) IsFalse() bool { return p != nil && p.Op == OpFalse }

// Eq compares two columns, reducing to TRUE when the operands are
// structurally equal and to FALSE when both are unequal parameter literals.
func Eq(l, r Column) *Predicate {
	if columnsEqual(l, r) {
		return True()
	}
	if equal, bothParams := paramsEqual(l, r); bothParams && !equal {
		return False()
	}
	return &Predicate{Op: OpEq, L: l, R: r}
}

// Neq is the negation of Eq.
func Neq(l, r Column) *Predicate {
	return Not(Eq(l, r))
}

// Lt compares two columns with <.
func Lt(l, r Column) *Predicate { return &Predicate{Op: OpLt, L: l, R: r} }

// Lte compares two columns with <=.
func Lte(l, r Column) *Predicate { return &Predicate{Op: OpLte, L: l, R: r} }

// Gt compares two columns with >.
func Gt(l, r Column) *Predicate { return &Predicate{Op: OpGt, L: l, R: r} }

// Gte compares two columns with >=.
func Gte(l, r Column) *Predicate { return &Predicate{Op: OpGte, L: l, R: r} }

// In tests membership of l in r.
func In(l, r Column) *Predicate { return &Predicate{Op: OpIn, L: l, R: r} }

// StringLike matches l against pattern r, case sensitive or not.
func StringLike(l, r Column, caseSensitive bool) *Predicate {
	return &Predicate{Op: OpStringLike, L: l, R: r, CaseSensitive: caseSensitive}
}

// StringStartsWith matches prefix r.
func StringStartsWith(l, r Column) *Predicate {
	return &Predicate{Op: OpStringStartsWith, L: l, R: r}
}

// StringEndsWith matches suffix r.
func StringEndsWith(l, r Column) *Predicate {
	return &Predicate{Op: OpStringEndsWith, L: l, R: r}
}

// JsonContains tests l @> r.
func JsonContains(l, r Column) *Predicate { return &Predicate{Op: OpJsonContains, L: l, R: r} }

// JsonContainedBy tests l <@ r.
func JsonContainedBy(l, r Column) *Predicate { return &Predicate{Op: OpJsonContainedBy, L: l, R: r} }

// JsonMatchKey tests l ? r.
func JsonMatchKey(l, r Column) *Predicate { return &Predicate{Op: OpJsonMatchKey, L: l, R: r} }

// JsonMatchAnyKey tests l ?| r.
func JsonMatchAnyKey(l, r Column) *Predicate { return &Predicate{Op: OpJsonMatchAnyKey, L: l, R: r} }

// JsonMatchAllKeys tests l ?& r.
func JsonMatchAllKeys(l, r Column) *Predicate { return &Predicate{Op: OpJsonMatchAllKeys, L: l, R: r} }

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
		return &Predicate{Op: OpAnd, Left: l, Right: r}
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
		return &Predicate{Op: OpOr, Left: l, Right: r}
	}
}

// Not negates a predicate, pushing the negation into relational leaves
// where a direct inverse exists.
func Not(p *Predicate) *Predicate {
	switch p.Op {
	case OpTrue:
		return False()
	case OpFalse:
		return True()
	case OpEq:
		return &Predicate{Op: OpNeq, L: p.L, R: p.R}
	case OpNeq:
		return &Predicate{Op: OpEq, L: p.L, R: p.R}
	case OpLt:
		return &Predicate{Op: OpGte, L: p.L, R: p.R}
	case OpLte:
		return &Predicate{Op: OpGt, L: p.L, R: p.R}
	case OpGt:
		return &Predicate{Op: OpLte, L: p.L, R: p.R}
	case OpGte:
		return &Predicate{Op: OpLt, L: p.L, R: p.R}
	case OpNot:
		return p.Left
	default:
		return &Predicate{Op: OpNot, Left: p}
	}
}

// Build renders the predicate.
func (p *Predicate) Build(b *Builder) {
	switch p.Op {
	case OpTrue:
		b.WriteString("TRUE")
	case OpFalse:
		b.WriteString("FALSE")
	case OpEq:
		p.relational(b, "=")
	case OpNeq:
		p.relational(b, "<>")
	case OpLt:
		p.relational(b, "<")
	case OpLte:
		p.relational(b, "<=")
	case OpGt:
		p.relational(b, ">")
	case OpGte:
		p.relational(b, ">=")
	case OpIn:
		p.relational(b, "IN")
	case OpStringLike:
		if p.CaseSensitive {
			p.relational(b, "LIKE")
		} else {
			p.relational(b, "ILIKE")
		}
	case OpStringStartsWith:
		// The concat operator handles both literals and column references.
		p.L.Build(b)
		b.WriteString(" LIKE ")
		p.R.Build(b)
		b.WriteString(" || '%'")
	case OpStringEndsWith:
		p.L.Build(b)
		b.WriteString(" LIKE '%' || ")
		p.R.Build(b)
	case OpJsonContains:
		p.relational(b, "@>")
	case OpJsonContainedBy:
		p.relational(b, "<@")
	case OpJsonMatchKey:
		p.relational(b, "?")
	case OpJsonMatchAnyKey:
		p.relational(b, "?|")
	case OpJsonMatchAllKeys:
		p.relational(b, "?&")
	case OpAnd:
		p.logical(b, "AND")
	case OpOr:
		p.logical(b, "OR")
	case OpNot:
		b.WriteString("NOT(")
		p.Left.Build(b)
		b.WriteByte(')')
	}
}

func (p *Predicate) relational(b *Builder, op string) {
	p.L.Build(b)
	b.WriteByte(' ')
	b.WriteString(op)
	b.WriteByte(' ')
	p.R.Build(b)
}

func (p *Predicate) logical(b *Builder, op string) {
	b.WriteByte('(')
	p.Left.Build(b)
	b.WriteByte(' ')
	b.WriteString(op)
	b.WriteByte(' ')
	p.Right.Build(b)
	b.WriteByte(')')
}

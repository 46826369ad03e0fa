package sqlgraph

import (
	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/schema"
)

// Transformer lowers abstract operations into concrete dialect/sql
// operations against a fixed physical database layout.
type Transformer struct {
	DB *schema.Database
}

// NewTransformer returns a transformer over the given layout.
func NewTransformer(db *schema.Database) *Transformer {
	return &Transformer{DB: db}
}

// leafColumn lowers a column path to the physical column at its last link.
func (t *Transformer) leafColumn(p ColumnPath) sql.Column {
	switch p.Kind {
	case PathPhysical:
		return sql.Physical{Col: t.DB.Column(p.Leaf().SelfColumn)}
	case PathParam:
		// List literals compare as array parameters: col = ANY($n).
		if list, ok := p.Value.([]any); ok {
			return sql.ArrayParam{Values: list, Wrapper: sql.WrapperAny}
		}
		return sql.Param{Value: p.Value}
	default:
		return sql.Null{}
	}
}

// ToPredicate lowers an abstract predicate directly: each column path is
// replaced by the physical column at its last link. Paths that traverse
// joins require those joins to be present in the enclosing FROM clause.
func (t *Transformer) ToPredicate(p *Predicate) *sql.Predicate {
	if p == nil {
		return sql.True()
	}
	switch p.Op {
	case sql.OpTrue:
		return sql.True()
	case sql.OpFalse:
		return sql.False()
	case sql.OpEq:
		return sql.Eq(t.leafColumn(p.L), t.leafColumn(p.R))
	case sql.OpNeq:
		return sql.Neq(t.leafColumn(p.L), t.leafColumn(p.R))
	case sql.OpAnd:
		return sql.And(t.ToPredicate(p.Left), t.ToPredicate(p.Right))
	case sql.OpOr:
		return sql.Or(t.ToPredicate(p.Left), t.ToPredicate(p.Right))
	case sql.OpNot:
		return sql.Not(t.ToPredicate(p.Left))
	default:
		return &sql.Predicate{
			Op:            p.Op,
			L:             t.leafColumn(p.L),
			R:             t.leafColumn(p.R),
			CaseSensitive: p.CaseSensitive,
		}
	}
}

// ToSubselectPredicate lowers an abstract predicate, rewriting any leaf
// whose left path traverses at least one join into an
// `IN (SELECT fk FROM linked WHERE residual)` predicate instead of
// requiring a join in the enclosing FROM clause. The rewriting preserves
// the operator: Eq stays Eq, StringLike keeps its case flag, and so on.
// Leaves over single-link paths lower directly.
func (t *Transformer) ToSubselectPredicate(p *Predicate) *sql.Predicate {
	if p == nil {
		return sql.True()
	}
	switch p.Op {
	case sql.OpTrue:
		return sql.True()
	case sql.OpFalse:
		return sql.False()
	case sql.OpAnd:
		return sql.And(t.ToSubselectPredicate(p.Left), t.ToSubselectPredicate(p.Right))
	case sql.OpOr:
		return sql.Or(t.ToSubselectPredicate(p.Left), t.ToSubselectPredicate(p.Right))
	case sql.OpNot:
		return sql.Not(t.ToSubselectPredicate(p.Left))
	default:
		if sub := t.subselectLeaf(p); sub != nil {
			return sub
		}
		return t.ToPredicate(p)
	}
}

// subselectLeaf rewrites one relational leaf whose left path starts with a
// join link. It returns nil when the leaf does not traverse a relation.
func (t *Transformer) subselectLeaf(p *Predicate) *sql.Predicate {
	if p.L.Kind != PathPhysical || len(p.L.Links) == 0 || !p.L.Links[0].IsJoin() {
		return nil
	}
	head, tail := p.L.Links[0], p.L.Links[1:]
	linked := *head.LinkedColumn
	linkedCol := t.DB.Column(linked)

	residual := &Predicate{
		Op:            p.Op,
		L:             PhysicalPath(tail...),
		R:             p.R,
		CaseSensitive: p.CaseSensitive,
	}
	inner := &AbstractSelect{
		Table: linked.Table,
		Selection: SeqSelection(ColumnSelection{
			Alias:   linkedCol.Name,
			Element: ElemPhysical{Col: linked},
		}),
		Predicate: residual,
	}
	innerSelect := t.ToSelect(inner, nil, []*schema.Column{linkedCol}, Nested)

	return sql.In(
		sql.Physical{Col: t.DB.Column(head.SelfColumn)},
		sql.SubSelect{Select: innerSelect},
	)
}

// ToSelect lowers an abstract select. The additional predicate (typically a
// solved access predicate or a nested correlation) is AND-folded into the
// WHERE clause; groupBy, when present, renders a GROUP BY over physical
// columns.
func (t *Transformer) ToSelect(asel *AbstractSelect, additional *sql.Predicate, groupBy []*schema.Column, level SelectionLevel) *sql.Select {
	// Joins are introduced only for paths the lowered predicate will not
	// turn into subselects: order-by paths always, predicate paths when the
	// select is nested and lowers directly.
	var joinPaths [][]ColumnPathLink
	for _, ob := range asel.OrderBy {
		if ob.Path.Kind == PathPhysical && len(ob.Path.Links) > 1 {
			joinPaths = append(joinPaths, ob.Path.Links)
		}
	}
	if level == Nested {
		for _, p := range asel.Predicate.ColumnPaths() {
			if len(p.Links) > 1 {
				joinPaths = append(joinPaths, p.Links)
			}
		}
	}
	from := t.computeJoin(asel.Table, joinPaths)

	var pred *sql.Predicate
	if level == TopLevel {
		pred = t.ToSubselectPredicate(asel.Predicate)
	} else {
		pred = t.ToPredicate(asel.Predicate)
	}
	if additional != nil {
		pred = sql.And(pred, additional)
	}

	sel := &sql.Select{
		From:      from,
		Columns:   t.selectionColumns(asel.Selection),
		Predicate: pred,
		GroupBy:   groupBy,
		Offset:    asel.Offset,
		Limit:     asel.Limit,
		TopLevel:  level == TopLevel,
	}
	for _, ob := range asel.OrderBy {
		sel.OrderBy = append(sel.OrderBy, sql.OrderByElem{Column: t.leafColumn(ob.Path), Desc: ob.Desc})
	}
	return sel
}

func (t *Transformer) selectionColumns(s Selection) []sql.Column {
	switch s.Form {
	case FormJson:
		elems := make([]sql.JsonObjectElem, len(s.Elems))
		for i, cs := range s.Elems {
			elems[i] = sql.JsonObjectElem{Key: cs.Alias, Column: t.elementColumn(cs.Element)}
		}
		obj := sql.JsonObject{Elems: elems}
		if s.Cardinality == CardinalityMany {
			return []sql.Column{sql.JsonAgg{Column: obj}}
		}
		return []sql.Column{obj}
	default:
		cols := make([]sql.Column, len(s.Elems))
		for i, cs := range s.Elems {
			cols[i] = t.elementColumn(cs.Element)
		}
		return cols
	}
}

func (t *Transformer) elementColumn(e SelectionElement) sql.Column {
	switch e := e.(type) {
	case ElemPhysical:
		return sql.Physical{Col: t.DB.Column(e.Col)}
	case ElemConstant:
		return sql.Constant{Value: e.Value}
	case ElemFunction:
		return sql.Function{Name: e.Name, Arg: sql.Physical{Col: t.DB.Column(e.Col)}}
	case ElemAggregate:
		elems := make([]sql.JsonObjectElem, len(e.Funcs))
		for i, fn := range e.Funcs {
			elems[i] = sql.JsonObjectElem{
				Key:    fn,
				Column: sql.Function{Name: aggFunctionName(fn), Arg: sql.Physical{Col: t.DB.Column(e.Col)}},
			}
		}
		return sql.JsonObject{Elems: elems}
	case ElemNested:
		correlation := sql.Eq(
			sql.Physical{Col: t.DB.Column(e.Relation.SelfColumn)},
			sql.Physical{Col: t.DB.Column(e.Relation.LinkedColumn)},
		)
		return sql.SubSelect{Select: t.ToSelect(e.Select, correlation, nil, Nested)}
	default:
		panic("exo: unknown selection element")
	}
}

func aggFunctionName(field string) string {
	switch field {
	case "count":
		return "COUNT"
	case "sum":
		return "SUM"
	case "avg":
		return "AVG"
	case "min":
		return "MIN"
	case "max":
		return "MAX"
	default:
		return "COUNT"
	}
}

// computeJoin builds the FROM clause: the root table, left-joined with every
// table the given paths traverse. Identical join edges collapse into one
// join; tails recurse on the joined table.
func (t *Transformer) computeJoin(table schema.TableID, paths [][]ColumnPathLink) sql.TableExpr {
	var result sql.TableExpr = sql.TableRef{Table: t.DB.Table(table)}

	type edge struct {
		self, linked schema.ColumnID
	}
	grouped := make(map[edge][][]ColumnPathLink)
	var order []edge
	for _, links := range paths {
		if len(links) == 0 || !links[0].IsJoin() {
			continue
		}
		e := edge{self: links[0].SelfColumn, linked: *links[0].LinkedColumn}
		if _, seen := grouped[e]; !seen {
			order = append(order, e)
			grouped[e] = nil
		}
		if len(links) > 1 {
			grouped[e] = append(grouped[e], links[1:])
		}
	}

	for _, e := range order {
		right := t.computeJoin(e.linked.Table, grouped[e])
		on := sql.Eq(
			sql.Physical{Col: t.DB.Column(e.self)},
			sql.Physical{Col: t.DB.Column(e.linked)},
		)
		result = sql.Join{Left: result, Right: right, Predicate: on}
	}
	return result
}

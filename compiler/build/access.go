package build

import (
	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/ast"
	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
	"github.com/syssam/exo/schema"
)

var relationalOps = map[ast.RelationalOp]sql.PredicateOp{
	ast.OpEq:  sql.OpEq,
	ast.OpNeq: sql.OpNeq,
	ast.OpLt:  sql.OpLt,
	ast.OpLte: sql.OpLte,
	ast.OpGt:  sql.OpGt,
	ast.OpGte: sql.OpGte,
	ast.OpIn:  sql.OpIn,
}

// buildAccess lowers the @access annotations of an entity. Absent
// annotations leave the expression slots nil, which denies the operation.
func (b *builder) buildAccess(idx int, decl *ast.TypeDecl) error {
	entity := b.sys.Entities[idx]
	a := decl.Annotation("access")
	if a != nil {
		ac, err := b.lowerAccessAnnotation(a, idx)
		if err != nil {
			return err
		}
		entity.Access = ac
	}
	for fi, f := range decl.Fields {
		fa := f.Annotation("access")
		if fa == nil {
			continue
		}
		ac, err := b.lowerAccessAnnotation(fa, idx)
		if err != nil {
			return err
		}
		entity.Fields[fi].Access = ac.Read
	}
	return nil
}

// lowerAccessAnnotation maps annotation arguments onto the four operation
// slots: a single positional expression covers everything, `query:` covers
// reads, `mutation:` covers all three mutations unless a more specific
// argument overrides it.
func (b *builder) lowerAccessAnnotation(a *ast.Annotation, entityIdx int) (schema.AccessControl, error) {
	var ac schema.AccessControl
	lower := func(expr ast.Expr) (*schema.AccessExpr, error) {
		if expr == nil {
			return nil, nil
		}
		return b.lowerPredicateExpr(expr, entityIdx)
	}

	if len(a.Args) == 1 && a.Args[0].Name == "" {
		all, err := lower(a.Args[0].Value)
		if err != nil {
			return ac, err
		}
		return schema.AccessControl{Read: all, Create: all, Update: all, Delete: all}, nil
	}

	var query, mutation, create, update, del ast.Expr
	for _, arg := range a.Args {
		switch arg.Name {
		case "query":
			query = arg.Value
		case "mutation":
			mutation = arg.Value
		case "create":
			create = arg.Value
		case "update":
			update = arg.Value
		case "delete":
			del = arg.Value
		default:
			return ac, exo.Validationf("%s: unknown @access argument %q", a.Span, arg.Name)
		}
	}
	if create == nil {
		create = mutation
	}
	if update == nil {
		update = mutation
	}
	if del == nil {
		del = mutation
	}
	var err error
	if ac.Read, err = lower(query); err != nil {
		return ac, err
	}
	if ac.Create, err = lower(create); err != nil {
		return ac, err
	}
	if ac.Update, err = lower(update); err != nil {
		return ac, err
	}
	if ac.Delete, err = lower(del); err != nil {
		return ac, err
	}
	return ac, nil
}

// lowerPredicateExpr lowers an expression in predicate position.
func (b *builder) lowerPredicateExpr(expr ast.Expr, entityIdx int) (*schema.AccessExpr, error) {
	switch e := expr.(type) {
	case *ast.BooleanLit:
		return &schema.AccessExpr{Kind: schema.AccessBoolean, Value: e.Value}, nil
	case *ast.LogicalExpr:
		left, err := b.lowerPredicateExpr(e.Left, entityIdx)
		if err != nil {
			return nil, err
		}
		node := &schema.AccessExpr{Kind: schema.AccessLogical, Left: left}
		switch e.Op {
		case ast.OpAnd:
			node.Op = sql.OpAnd
		case ast.OpOr:
			node.Op = sql.OpOr
		case ast.OpNot:
			node.Op = sql.OpNot
			return node, nil
		}
		node.Right, err = b.lowerPredicateExpr(e.Right, entityIdx)
		if err != nil {
			return nil, err
		}
		return node, nil
	case *ast.RelationalExpr:
		left, err := b.lowerOperand(e.Left, entityIdx)
		if err != nil {
			return nil, err
		}
		right, err := b.lowerOperand(e.Right, entityIdx)
		if err != nil {
			return nil, err
		}
		return &schema.AccessExpr{
			Kind:  schema.AccessRelational,
			Op:    relationalOps[e.Op],
			Left:  left,
			Right: right,
		}, nil
	case *ast.FieldSelection:
		if hof, ok := e.Element.(*ast.HofCall); ok {
			return b.lowerHofCall(e, hof, entityIdx)
		}
		// A bare boolean field reads as field == true.
		operand, err := b.lowerOperand(e, entityIdx)
		if err != nil {
			return nil, err
		}
		return &schema.AccessExpr{
			Kind:  schema.AccessRelational,
			Op:    sql.OpEq,
			Left:  operand,
			Right: &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: true},
		}, nil
	default:
		return nil, exo.Validationf("%s: expression is not a predicate", expr.Pos())
	}
}

// lowerOperand lowers an expression in operand position: a literal, a
// context selection, or a column path rooted at self.
func (b *builder) lowerOperand(expr ast.Expr, entityIdx int) (*schema.AccessExpr, error) {
	switch e := expr.(type) {
	case *ast.StringLit:
		return &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: e.Value}, nil
	case *ast.NumberLit:
		if e.IsInt {
			return &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: int64(e.Value)}, nil
		}
		return &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: e.Value}, nil
	case *ast.BooleanLit:
		return &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: e.Value}, nil
	case *ast.NullLit:
		return &schema.AccessExpr{Kind: schema.AccessLiteral, Literal: nil}, nil
	case *ast.FieldSelection:
		chain, err := selectionChain(e)
		if err != nil {
			return nil, err
		}
		if chain[0] == "self" {
			links, _, err := b.pathLinks(chain[1:], entityIdx, e.Pos())
			if err != nil {
				return nil, err
			}
			return &schema.AccessExpr{Kind: schema.AccessColumn, Column: links}, nil
		}
		if _, ok := b.env.Contexts[chain[0]]; ok {
			return &schema.AccessExpr{Kind: schema.AccessContext, Context: chain}, nil
		}
		return nil, exo.Validationf("%s: unknown name %q", e.Pos(), chain[0])
	default:
		return nil, exo.Validationf("%s: unsupported operand", expr.Pos())
	}
}

// lowerHofCall lowers set.some/all/none: the selection prefix contributes
// the relation links, the call body lowers against the set's element
// entity, and every column path inside the body is prefixed with those
// links.
func (b *builder) lowerHofCall(sel *ast.FieldSelection, hof *ast.HofCall, entityIdx int) (*schema.AccessExpr, error) {
	if sel.Prefix == nil {
		return nil, exo.Validationf("%s: %s(...) requires a set selection", hof.Span, hof.Name)
	}
	chain, err := selectionChain(sel.Prefix)
	if err != nil {
		return nil, err
	}
	if chain[0] != "self" {
		return nil, exo.Validationf("%s: %s(...) is only supported on entity sets", hof.Span, hof.Name)
	}
	links, elemIdx, err := b.pathLinks(chain[1:], entityIdx, sel.Pos())
	if err != nil {
		return nil, err
	}
	body := hof.Expr
	inner, err := b.lowerHofBody(body, hof.ParamName, elemIdx)
	if err != nil {
		return nil, err
	}
	switch hof.Name {
	case "all":
		// all(p) is the negation of some(!p).
		negated := negate(inner)
		prefixColumns(negated, links)
		return negate(negated), nil
	case "none":
		prefixColumns(inner, links)
		return negate(inner), nil
	default: // some
		prefixColumns(inner, links)
		return inner, nil
	}
}

// lowerHofBody lowers the call body with the parameter standing in for
// self of the element entity.
func (b *builder) lowerHofBody(expr ast.Expr, param string, elemIdx int) (*schema.AccessExpr, error) {
	rewritten := rewriteParam(expr, param)
	return b.lowerPredicateExpr(rewritten, elemIdx)
}

// rewriteParam maps the bound parameter onto self so the standard lowering
// applies inside the call body.
func rewriteParam(expr ast.Expr, param string) ast.Expr {
	switch e := expr.(type) {
	case *ast.LogicalExpr:
		out := *e
		out.Left = rewriteParam(e.Left, param)
		if e.Right != nil {
			out.Right = rewriteParam(e.Right, param)
		}
		return &out
	case *ast.RelationalExpr:
		out := *e
		out.Left = rewriteParam(e.Left, param)
		out.Right = rewriteParam(e.Right, param)
		return &out
	case *ast.FieldSelection:
		root := e
		for root.Prefix != nil {
			root = root.Prefix
		}
		if ident, ok := root.Element.(*ast.Identifier); ok && ident.Name == param {
			root.Element = &ast.Identifier{Name: "self", Span: ident.Span}
		}
		return e
	default:
		return expr
	}
}

func negate(e *schema.AccessExpr) *schema.AccessExpr {
	return &schema.AccessExpr{Kind: schema.AccessLogical, Op: sql.OpNot, Left: e}
}

// prefixColumns prepends the relation links to every column path in the
// tree, re-rooting child-entity paths at the parent.
func prefixColumns(e *schema.AccessExpr, links []sqlgraph.ColumnPathLink) {
	if e == nil {
		return
	}
	if e.Kind == schema.AccessColumn {
		e.Column = append(append([]sqlgraph.ColumnPathLink{}, links...), e.Column...)
		return
	}
	prefixColumns(e.Left, links)
	prefixColumns(e.Right, links)
}

// selectionChain flattens a selection into its identifier chain.
func selectionChain(sel *ast.FieldSelection) ([]string, error) {
	var rev []string
	for cur := sel; cur != nil; cur = cur.Prefix {
		ident, ok := cur.Element.(*ast.Identifier)
		if !ok {
			return nil, exo.Validationf("%s: unexpected call in a selection chain", cur.Span)
		}
		rev = append(rev, ident.Name)
	}
	chain := make([]string, len(rev))
	for i, s := range rev {
		chain[len(rev)-1-i] = s
	}
	return chain, nil
}

// pathLinks resolves a field chain from an entity into column path links.
// It returns the links and the entity the path ends in (meaningful when the
// last field is a relation).
func (b *builder) pathLinks(chain []string, entityIdx int, span ast.Span) ([]sqlgraph.ColumnPathLink, int, error) {
	links := []sqlgraph.ColumnPathLink{}
	cur := entityIdx
	for i, name := range chain {
		entity := b.sys.Entities[cur]
		field := entity.Field(name)
		if field == nil {
			return nil, 0, exo.Validationf("%s: type %q has no field %q", span, entity.Name, name)
		}
		switch field.Relation.Kind {
		case schema.RelationScalar:
			if i != len(chain)-1 {
				return nil, 0, exo.Validationf("%s: cannot select into scalar field %q", span, name)
			}
			links = append(links, sqlgraph.ColumnPathLink{SelfColumn: field.Relation.ColumnID})
		case schema.RelationManyToOne:
			foreign := *field.Relation.ForeignPK
			links = append(links, sqlgraph.ColumnPathLink{
				SelfColumn:   field.Relation.ColumnID,
				LinkedColumn: &foreign,
			})
			cur = field.Type.Entity
		case schema.RelationOneToMany:
			pkID, ok := b.sys.Database.PKColumnID(entity.TableID)
			if !ok {
				return nil, 0, exo.Internalf("entity %q has no primary key", entity.Name)
			}
			inverse := *field.Relation.InverseColumnID
			links = append(links, sqlgraph.ColumnPathLink{
				SelfColumn:   pkID,
				LinkedColumn: &inverse,
			})
			cur = field.Type.Entity
		default:
			return nil, 0, exo.Validationf("%s: cannot build a path through field %q", span, name)
		}
	}
	return links, cur, nil
}

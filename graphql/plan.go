package graphql

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/exo"
	"github.com/syssam/exo/access"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
	"github.com/syssam/exo/schema"
)

// planner lowers one validated field into an abstract operation with the
// solved access predicate folded in.
type planner struct {
	sys       *schema.System
	doc       *ast.QueryDocument
	validator *argValidator
	reqCtx    map[string]any
}

// operatorPredicate maps a filter operator name to its predicate constructor.
func operatorPredicate(op string, path, param sqlgraph.ColumnPath) (*sqlgraph.Predicate, error) {
	switch op {
	case "eq":
		return sqlgraph.Eq(path, param), nil
	case "neq":
		return sqlgraph.Neq(path, param), nil
	case "lt":
		return sqlgraph.Lt(path, param), nil
	case "lte":
		return sqlgraph.Lte(path, param), nil
	case "gt":
		return sqlgraph.Gt(path, param), nil
	case "gte":
		return sqlgraph.Gte(path, param), nil
	case "in":
		// Array parameters compare with = ANY($n).
		return sqlgraph.Eq(path, param), nil
	case "like":
		return sqlgraph.StringLike(path, param, true), nil
	case "ilike":
		return sqlgraph.StringLike(path, param, false), nil
	case "startsWith":
		return sqlgraph.StringStartsWith(path, param), nil
	case "endsWith":
		return sqlgraph.StringEndsWith(path, param), nil
	case "contains":
		return sqlgraph.JsonContains(path, param), nil
	case "containedBy":
		return sqlgraph.JsonContainedBy(path, param), nil
	case "matchKey":
		return sqlgraph.JsonMatchKey(path, param), nil
	case "matchAnyKey":
		return sqlgraph.JsonMatchAnyKey(path, param), nil
	case "matchAllKeys":
		return sqlgraph.JsonMatchAllKeys(path, param), nil
	default:
		return nil, exo.Validationf("unknown filter operator %q", op)
	}
}

// queryArgDefs returns the expected arguments of a generated query.
func (p *planner) queryArgDefs(q *schema.Query) []argDef {
	entity := p.sys.Entity(q.Entity)
	switch q.Kind {
	case schema.PkQuery:
		pk := entity.PKField()
		return []argDef{{Name: pk.Name, Kind: argScalar, Scalar: pk.Type.Primitive, Required: true, Field: pk}}
	case schema.UniqueQuery:
		defs := make([]argDef, 0, len(q.UniqueFields))
		for _, name := range q.UniqueFields {
			f := entity.Field(name)
			defs = append(defs, argDef{Name: name, Kind: argScalar, Scalar: f.Type.Primitive, Required: true, Field: f})
		}
		return defs
	case schema.AggregateQuery:
		return []argDef{{Name: "where", Kind: argWhere, Entity: q.Entity}}
	default:
		return []argDef{
			{Name: "where", Kind: argWhere, Entity: q.Entity},
			{Name: "orderBy", Kind: argOrderBy, Entity: q.Entity},
			{Name: "limit", Kind: argScalar, Scalar: "Int"},
			{Name: "offset", Kind: argScalar, Scalar: "Int"},
		}
	}
}

func (p *planner) mutationArgDefs(m *schema.Mutation) []argDef {
	entity := p.sys.Entity(m.Entity)
	pk := entity.PKField()
	switch m.Kind {
	case schema.CreateMutation:
		return []argDef{{Name: "data", Kind: argCreateData, Entity: m.Entity, Required: true}}
	case schema.CreateManyMutation:
		return []argDef{{Name: "data", Kind: argCreateData, Entity: m.Entity, Required: true, List: true}}
	case schema.UpdateMutation:
		return []argDef{
			{Name: pk.Name, Kind: argScalar, Scalar: pk.Type.Primitive, Required: true, Field: pk},
			{Name: "data", Kind: argUpdateData, Entity: m.Entity, Required: true},
		}
	case schema.UpdateManyMutation:
		return []argDef{
			{Name: "where", Kind: argWhere, Entity: m.Entity},
			{Name: "data", Kind: argUpdateData, Entity: m.Entity, Required: true},
		}
	case schema.DeleteMutation:
		return []argDef{{Name: pk.Name, Kind: argScalar, Scalar: pk.Type.Primitive, Required: true, Field: pk}}
	default:
		return []argDef{{Name: "where", Kind: argWhere, Entity: m.Entity}}
	}
}

// solveAccess reduces an access expression; a definitive deny aborts the
// operation before any SQL is planned.
func (p *planner) solveAccess(expr *schema.AccessExpr, op string) (*sqlgraph.Predicate, error) {
	solved, err := access.Solve(expr, p.reqCtx)
	if err != nil {
		return nil, err
	}
	if solved.IsFalse() {
		return nil, &exo.AuthorizationError{Operation: op}
	}
	return solved, nil
}

// planQuery lowers a query field into an abstract select.
func (p *planner) planQuery(q *schema.Query, field *ast.Field) (*sqlgraph.AbstractSelect, error) {
	entity := p.sys.Entity(q.Entity)
	accessPred, err := p.solveAccess(entity.Access.Read, field.Name)
	if err != nil {
		return nil, err
	}
	args, err := p.validator.validateArguments(p.queryArgDefs(q), field.Arguments, field.Name)
	if err != nil {
		return nil, err
	}

	var pred *sqlgraph.Predicate = sqlgraph.True()
	switch q.Kind {
	case schema.PkQuery, schema.UniqueQuery:
		names := q.UniqueFields
		if q.Kind == schema.PkQuery {
			names = []string{entity.PKField().Name}
		}
		for _, name := range names {
			f := entity.Field(name)
			value, err := p.castScalar(f, args[name])
			if err != nil {
				return nil, err
			}
			pred = sqlgraph.And(pred, sqlgraph.Eq(
				sqlgraph.PhysicalPath(sqlgraph.ColumnPathLink{SelfColumn: f.Relation.ColumnID}),
				sqlgraph.ParamPath(value),
			))
		}
	default:
		if where, ok := args["where"].(map[string]any); ok {
			wp, err := p.wherePredicate(q.Entity, where, nil)
			if err != nil {
				return nil, err
			}
			pred = sqlgraph.And(pred, wp)
		}
	}
	pred = sqlgraph.And(pred, accessPred)

	var selection sqlgraph.Selection
	if q.Kind == schema.AggregateQuery {
		selection, err = p.aggregateSelection(q.Entity, field.SelectionSet)
	} else {
		selection, err = p.jsonSelection(q.Entity, field.SelectionSet, sqlgraph.CardinalityMany)
	}
	if err != nil {
		return nil, err
	}

	asel := &sqlgraph.AbstractSelect{
		Table:     entity.TableID,
		Selection: selection,
		Predicate: pred,
	}
	if q.Kind == schema.CollectionQuery {
		if ob, ok := args["orderBy"]; ok {
			asel.OrderBy, err = p.orderBy(q.Entity, ob, nil)
			if err != nil {
				return nil, err
			}
		}
		if limit, ok := args["limit"]; ok {
			n := int64(asNumber(limit))
			asel.Limit = &n
		}
		if offset, ok := args["offset"]; ok {
			n := int64(asNumber(offset))
			asel.Offset = &n
		}
	}
	return asel, nil
}

// jsonSelection lowers a GraphQL selection set into the JSON selection
// form, walking fragments and enforcing per-field access slots.
func (p *planner) jsonSelection(entityIdx int, selSet ast.SelectionSet, cardinality sqlgraph.SelectionCardinality) (sqlgraph.Selection, error) {
	entity := p.sys.Entity(entityIdx)
	var elems []sqlgraph.ColumnSelection

	var walk func(selSet ast.SelectionSet) error
	walk = func(selSet ast.SelectionSet) error {
		for _, sel := range selSet {
			switch sel := sel.(type) {
			case *ast.Field:
				elem, err := p.fieldElement(entity, entityIdx, sel)
				if err != nil {
					return err
				}
				elems = append(elems, *elem)
			case *ast.FragmentSpread:
				frag := p.doc.Fragments.ForName(sel.Name)
				if frag == nil {
					return exo.Validationf("unknown fragment %q", sel.Name)
				}
				if frag.TypeCondition != entity.Name {
					return exo.Validationf("fragment %q does not apply to %q", sel.Name, entity.Name)
				}
				if err := walk(frag.SelectionSet); err != nil {
					return err
				}
			case *ast.InlineFragment:
				if sel.TypeCondition != "" && sel.TypeCondition != entity.Name {
					return exo.Validationf("inline fragment does not apply to %q", entity.Name)
				}
				if err := walk(sel.SelectionSet); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(selSet); err != nil {
		return sqlgraph.Selection{}, err
	}
	return sqlgraph.JsonSelection(cardinality, elems...), nil
}

func (p *planner) fieldElement(entity *schema.Entity, entityIdx int, sel *ast.Field) (*sqlgraph.ColumnSelection, error) {
	alias := sel.Alias
	if alias == "" {
		alias = sel.Name
	}
	if sel.Name == "__typename" {
		return &sqlgraph.ColumnSelection{Alias: alias, Element: sqlgraph.ElemConstant{Value: entity.Name}}, nil
	}
	field := entity.Field(sel.Name)
	if field == nil {
		return nil, exo.Validationf("type %q has no field %q", entity.Name, sel.Name)
	}
	if field.Access != nil {
		if _, err := p.solveAccess(field.Access, sel.Name); err != nil {
			return nil, err
		}
	}
	switch field.Relation.Kind {
	case schema.RelationScalar:
		return &sqlgraph.ColumnSelection{Alias: alias, Element: sqlgraph.ElemPhysical{Col: field.Relation.ColumnID}}, nil
	case schema.RelationManyToOne:
		target := p.sys.Entity(field.Type.Entity)
		targetAccess, err := p.solveAccess(target.Access.Read, sel.Name)
		if err != nil {
			return nil, err
		}
		inner, err := p.jsonSelection(field.Type.Entity, sel.SelectionSet, sqlgraph.CardinalityOne)
		if err != nil {
			return nil, err
		}
		return &sqlgraph.ColumnSelection{Alias: alias, Element: sqlgraph.ElemNested{
			Relation: sqlgraph.RelationLink{
				SelfColumn:   field.Relation.ColumnID,
				LinkedColumn: *field.Relation.ForeignPK,
			},
			Select: &sqlgraph.AbstractSelect{
				Table:     target.TableID,
				Selection: inner,
				Predicate: targetAccess,
			},
		}}, nil
	case schema.RelationOneToMany:
		child := p.sys.Entity(field.Type.Entity)
		childAccess, err := p.solveAccess(child.Access.Read, sel.Name)
		if err != nil {
			return nil, err
		}
		defs := []argDef{
			{Name: "where", Kind: argWhere, Entity: field.Type.Entity},
			{Name: "orderBy", Kind: argOrderBy, Entity: field.Type.Entity},
			{Name: "limit", Kind: argScalar, Scalar: "Int"},
			{Name: "offset", Kind: argScalar, Scalar: "Int"},
		}
		args, err := p.validator.validateArguments(defs, sel.Arguments, sel.Name)
		if err != nil {
			return nil, err
		}
		pred := childAccess
		if where, ok := args["where"].(map[string]any); ok {
			wp, err := p.wherePredicate(field.Type.Entity, where, nil)
			if err != nil {
				return nil, err
			}
			pred = sqlgraph.And(pred, wp)
		}
		inner, err := p.jsonSelection(field.Type.Entity, sel.SelectionSet, sqlgraph.CardinalityMany)
		if err != nil {
			return nil, err
		}
		pkID, ok := p.sys.Database.PKColumnID(entity.TableID)
		if !ok {
			return nil, exo.Internalf("entity %q has no primary key", entity.Name)
		}
		nested := &sqlgraph.AbstractSelect{
			Table:     child.TableID,
			Selection: inner,
			Predicate: pred,
		}
		if ob, ok := args["orderBy"]; ok {
			nested.OrderBy, err = p.orderBy(field.Type.Entity, ob, nil)
			if err != nil {
				return nil, err
			}
		}
		if limit, ok := args["limit"]; ok {
			n := int64(asNumber(limit))
			nested.Limit = &n
		}
		if offset, ok := args["offset"]; ok {
			n := int64(asNumber(offset))
			nested.Offset = &n
		}
		return &sqlgraph.ColumnSelection{Alias: alias, Element: sqlgraph.ElemNested{
			Relation: sqlgraph.RelationLink{
				SelfColumn:   pkID,
				LinkedColumn: *field.Relation.InverseColumnID,
			},
			Select: nested,
		}}, nil
	default:
		return nil, exo.Validationf("field %q cannot be selected", sel.Name)
	}
}

// aggregateSelection lowers an aggregate field's selection set: each entity
// field selects an object of aggregate functions.
func (p *planner) aggregateSelection(entityIdx int, selSet ast.SelectionSet) (sqlgraph.Selection, error) {
	entity := p.sys.Entity(entityIdx)
	var elems []sqlgraph.ColumnSelection
	for _, sel := range selSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			return sqlgraph.Selection{}, exo.Validationf("aggregate selections do not take fragments")
		}
		alias := field.Alias
		if alias == "" {
			alias = field.Name
		}
		ef := entity.Field(field.Name)
		if ef == nil || ef.Relation.Kind != schema.RelationScalar {
			return sqlgraph.Selection{}, exo.Validationf("cannot aggregate field %q of %q", field.Name, entity.Name)
		}
		var funcs []string
		for _, sub := range field.SelectionSet {
			fn, ok := sub.(*ast.Field)
			if !ok {
				return sqlgraph.Selection{}, exo.Validationf("aggregate selections do not take fragments")
			}
			funcs = append(funcs, fn.Name)
		}
		elems = append(elems, sqlgraph.ColumnSelection{
			Alias:   alias,
			Element: sqlgraph.ElemAggregate{Col: ef.Relation.ColumnID, Funcs: funcs},
		})
	}
	return sqlgraph.JsonSelection(sqlgraph.CardinalityOne, elems...), nil
}

// wherePredicate lowers a validated where object into an abstract
// predicate. The prefix carries the links already traversed, so nested
// object filters produce multi-link paths for subselect lowering.
func (p *planner) wherePredicate(entityIdx int, where map[string]any, prefix []sqlgraph.ColumnPathLink) (*sqlgraph.Predicate, error) {
	entity := p.sys.Entity(entityIdx)
	pred := sqlgraph.True()
	for _, key := range sortedMapKeys(where) {
		value := where[key]
		switch key {
		case "and", "or":
			combined := sqlgraph.True()
			if key == "or" {
				combined = sqlgraph.False()
			}
			for _, item := range value.([]any) {
				sub, err := p.wherePredicate(entityIdx, item.(map[string]any), prefix)
				if err != nil {
					return nil, err
				}
				if key == "and" {
					combined = sqlgraph.And(combined, sub)
				} else {
					combined = sqlgraph.Or(combined, sub)
				}
			}
			pred = sqlgraph.And(pred, combined)
		case "not":
			sub, err := p.wherePredicate(entityIdx, value.(map[string]any), prefix)
			if err != nil {
				return nil, err
			}
			pred = sqlgraph.And(pred, sqlgraph.Not(sub))
		default:
			field := entity.Field(key)
			if field == nil {
				return nil, exo.Validationf("type %q has no field %q", entity.Name, key)
			}
			switch field.Relation.Kind {
			case schema.RelationScalar:
				path := append(append([]sqlgraph.ColumnPathLink{}, prefix...),
					sqlgraph.ColumnPathLink{SelfColumn: field.Relation.ColumnID})
				ops := value.(map[string]any)
				for _, op := range sortedMapKeys(ops) {
					raw := ops[op]
					var cast any
					var err error
					if op == "in" {
						list, ok := raw.([]any)
						if !ok {
							return nil, exo.Validationf("filter operator \"in\" takes a list")
						}
						castList := make([]any, len(list))
						for i, item := range list {
							if castList[i], err = p.castScalar(field, item); err != nil {
								return nil, err
							}
						}
						cast = castList
					} else {
						if cast, err = p.castScalar(field, raw); err != nil {
							return nil, err
						}
					}
					leaf, err := operatorPredicate(op, sqlgraph.PhysicalPath(path...), sqlgraph.ParamPath(cast))
					if err != nil {
						return nil, err
					}
					pred = sqlgraph.And(pred, leaf)
				}
			case schema.RelationManyToOne:
				link := sqlgraph.ColumnPathLink{
					SelfColumn:   field.Relation.ColumnID,
					LinkedColumn: field.Relation.ForeignPK,
				}
				sub, err := p.wherePredicate(field.Type.Entity, value.(map[string]any),
					append(append([]sqlgraph.ColumnPathLink{}, prefix...), link))
				if err != nil {
					return nil, err
				}
				pred = sqlgraph.And(pred, sub)
			case schema.RelationOneToMany:
				pkID, ok := p.sys.Database.PKColumnID(entity.TableID)
				if !ok {
					return nil, exo.Internalf("entity %q has no primary key", entity.Name)
				}
				link := sqlgraph.ColumnPathLink{
					SelfColumn:   pkID,
					LinkedColumn: field.Relation.InverseColumnID,
				}
				sub, err := p.wherePredicate(field.Type.Entity, value.(map[string]any),
					append(append([]sqlgraph.ColumnPathLink{}, prefix...), link))
				if err != nil {
					return nil, err
				}
				pred = sqlgraph.And(pred, sub)
			default:
				return nil, exo.Validationf("cannot filter on field %q", key)
			}
		}
	}
	return pred, nil
}

// orderBy lowers a validated orderBy argument into abstract order-by
// entries; nested objects traverse many-to-one relations.
func (p *planner) orderBy(entityIdx int, value any, prefix []sqlgraph.ColumnPathLink) ([]sqlgraph.OrderByElem, error) {
	entries, ok := value.([]any)
	if !ok {
		entries = []any{value}
	}
	entity := p.sys.Entity(entityIdx)
	var out []sqlgraph.OrderByElem
	for _, entry := range entries {
		obj := entry.(map[string]any)
		for _, key := range sortedMapKeys(obj) {
			field := entity.Field(key)
			switch field.Relation.Kind {
			case schema.RelationScalar:
				path := append(append([]sqlgraph.ColumnPathLink{}, prefix...),
					sqlgraph.ColumnPathLink{SelfColumn: field.Relation.ColumnID})
				out = append(out, sqlgraph.OrderByElem{
					Path: sqlgraph.PhysicalPath(path...),
					Desc: obj[key] == "DESC",
				})
			case schema.RelationManyToOne:
				link := sqlgraph.ColumnPathLink{
					SelfColumn:   field.Relation.ColumnID,
					LinkedColumn: field.Relation.ForeignPK,
				}
				nested, err := p.orderBy(field.Type.Entity, obj[key],
					append(append([]sqlgraph.ColumnPathLink{}, prefix...), link))
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
			}
		}
	}
	return out, nil
}

// castScalar converts an argument value through the field's physical column
// type.
func (p *planner) castScalar(field *schema.Field, value any) (any, error) {
	col := p.sys.Database.Column(field.Relation.ColumnID)
	return col.Type.Cast(value)
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

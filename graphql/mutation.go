package graphql

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect/sql"
	dbschema "github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
	"github.com/syssam/exo/schema"
)

// planCreate lowers a create mutation into an abstract insert.
func (p *planner) planCreate(m *schema.Mutation, field *ast.Field) (*sqlgraph.AbstractInsert, error) {
	entity := p.sys.Entity(m.Entity)
	if _, err := p.solveAccess(entity.Access.Create, field.Name); err != nil {
		return nil, err
	}
	args, err := p.validator.validateArguments(p.mutationArgDefs(m), field.Arguments, field.Name)
	if err != nil {
		return nil, err
	}

	var rawRows []any
	if m.Kind == schema.CreateManyMutation {
		rawRows = args["data"].([]any)
	} else {
		rawRows = []any{args["data"]}
	}
	rows := make([]sqlgraph.InsertRow, 0, len(rawRows))
	for _, raw := range rawRows {
		row, err := p.insertRow(m.Entity, raw.(map[string]any))
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}

	selection, err := p.jsonSelection(m.Entity, field.SelectionSet, sqlgraph.CardinalityMany)
	if err != nil {
		return nil, err
	}
	return &sqlgraph.AbstractInsert{
		Table: entity.TableID,
		Rows:  rows,
		Selection: &sqlgraph.AbstractSelect{
			Table:     entity.TableID,
			Selection: selection,
		},
	}, nil
}

// insertRow partitions one data object into self column values and nested
// child inserts.
func (p *planner) insertRow(entityIdx int, data map[string]any) (*sqlgraph.InsertRow, error) {
	entity := p.sys.Entity(entityIdx)
	row := &sqlgraph.InsertRow{}
	for _, key := range sortedMapKeys(data) {
		value := data[key]
		field := entity.Field(key)
		if field == nil {
			return nil, exo.Validationf("type %q has no field %q", entity.Name, key)
		}
		switch field.Relation.Kind {
		case schema.RelationScalar:
			if value == nil {
				continue
			}
			cast, err := p.castScalar(field, value)
			if err != nil {
				return nil, err
			}
			row.Values = append(row.Values, sqlgraph.ColumnValue{
				Col:   field.Relation.ColumnID,
				Value: sql.Param{Value: cast},
			})
		case schema.RelationManyToOne:
			if value == nil {
				continue
			}
			ref := p.sys.Database.Column(*field.Relation.ForeignPK)
			cast, err := ref.Type.Cast(value)
			if err != nil {
				return nil, err
			}
			row.Values = append(row.Values, sqlgraph.ColumnValue{
				Col:   field.Relation.ColumnID,
				Value: sql.Param{Value: cast},
			})
		case schema.RelationOneToMany:
			items, ok := value.([]any)
			if !ok {
				items = []any{value}
			}
			child := p.sys.Entity(field.Type.Entity)
			childRows := make([]sqlgraph.InsertRow, 0, len(items))
			for _, item := range items {
				obj := item.(map[string]any)
				if err := p.rejectRelationField(field.Type.Entity, *field.Relation.InverseColumnID, obj); err != nil {
					return nil, err
				}
				childRow, err := p.insertRow(field.Type.Entity, obj)
				if err != nil {
					return nil, err
				}
				childRows = append(childRows, *childRow)
			}
			row.Nested = append(row.Nested, sqlgraph.NestedInsert{
				Relation: *field.Relation.InverseColumnID,
				Insert: &sqlgraph.AbstractInsert{
					Table: child.TableID,
					Rows:  childRows,
				},
			})
		default:
			return nil, exo.Validationf("cannot set field %q", key)
		}
	}
	return row, nil
}

// planUpdate lowers an update mutation into an abstract update with its
// nested operations.
func (p *planner) planUpdate(m *schema.Mutation, field *ast.Field) (*sqlgraph.AbstractUpdate, error) {
	entity := p.sys.Entity(m.Entity)
	accessPred, err := p.solveAccess(entity.Access.Update, field.Name)
	if err != nil {
		return nil, err
	}
	args, err := p.validator.validateArguments(p.mutationArgDefs(m), field.Arguments, field.Name)
	if err != nil {
		return nil, err
	}

	pred, err := p.mutationPredicate(m.Kind == schema.UpdateMutation, m.Entity, args)
	if err != nil {
		return nil, err
	}
	pred = sqlgraph.And(pred, accessPred)

	au := &sqlgraph.AbstractUpdate{Table: entity.TableID, Predicate: pred}
	data := args["data"].(map[string]any)
	for _, key := range sortedMapKeys(data) {
		value := data[key]
		f := entity.Field(key)
		switch f.Relation.Kind {
		case schema.RelationScalar:
			cast, err := p.castScalar(f, value)
			if err != nil {
				return nil, err
			}
			au.Values = append(au.Values, sqlgraph.ColumnValue{
				Col:   f.Relation.ColumnID,
				Value: sql.Param{Value: cast},
			})
		case schema.RelationManyToOne:
			ref := p.sys.Database.Column(*f.Relation.ForeignPK)
			cast, err := ref.Type.Cast(value)
			if err != nil {
				return nil, err
			}
			au.Values = append(au.Values, sqlgraph.ColumnValue{
				Col:   f.Relation.ColumnID,
				Value: sql.Param{Value: cast},
			})
		case schema.RelationOneToMany:
			if err := p.nestedOps(au, f, value.(map[string]any)); err != nil {
				return nil, err
			}
		}
	}

	selection, err := p.jsonSelection(m.Entity, field.SelectionSet, sqlgraph.CardinalityMany)
	if err != nil {
		return nil, err
	}
	au.Selection = &sqlgraph.AbstractSelect{Table: entity.TableID, Selection: selection}
	return au, nil
}

// nestedOps lowers the {create, update, delete} object of a collection
// field inside update data.
func (p *planner) nestedOps(au *sqlgraph.AbstractUpdate, field *schema.Field, ops map[string]any) error {
	child := p.sys.Entity(field.Type.Entity)
	childPK := child.PKField()
	relation := *field.Relation.InverseColumnID

	for _, op := range sortedMapKeys(ops) {
		items, isList := ops[op].([]any)
		if !isList {
			items = []any{ops[op]}
		}
		switch op {
		case "create":
			childRows := make([]sqlgraph.InsertRow, 0, len(items))
			for _, item := range items {
				obj := item.(map[string]any)
				if err := p.rejectRelationField(field.Type.Entity, relation, obj); err != nil {
					return err
				}
				row, err := p.insertRow(field.Type.Entity, obj)
				if err != nil {
					return err
				}
				childRows = append(childRows, *row)
			}
			au.NestedInserts = append(au.NestedInserts, sqlgraph.NestedInsertSet{
				Ops: []sqlgraph.NestedInsert{{
					Relation: relation,
					Insert:   &sqlgraph.AbstractInsert{Table: child.TableID, Rows: childRows},
				}},
			})
		case "update":
			// One template step per object; nested updates key on the
			// child's primary key only.
			for _, item := range items {
				obj := item.(map[string]any)
				pkValue, ok := obj[childPK.Name]
				if !ok {
					return exo.Validationf("nested update on %q needs %q", child.Name, childPK.Name)
				}
				cast, err := p.castScalar(childPK, pkValue)
				if err != nil {
					return err
				}
				nested := &sqlgraph.AbstractUpdate{
					Table: child.TableID,
					Predicate: sqlgraph.Eq(
						sqlgraph.PhysicalPath(sqlgraph.ColumnPathLink{SelfColumn: childPK.Relation.ColumnID}),
						sqlgraph.ParamPath(cast),
					),
				}
				for _, key := range sortedMapKeys(obj) {
					if key == childPK.Name {
						continue
					}
					cf := child.Field(key)
					if cf == nil || cf.Relation.Kind != schema.RelationScalar {
						return exo.Validationf("cannot update field %q of %q here", key, child.Name)
					}
					castVal, err := p.castScalar(cf, obj[key])
					if err != nil {
						return err
					}
					nested.Values = append(nested.Values, sqlgraph.ColumnValue{
						Col:   cf.Relation.ColumnID,
						Value: sql.Param{Value: castVal},
					})
				}
				au.NestedUpdates = append(au.NestedUpdates, sqlgraph.NestedUpdate{
					Relation: relation,
					Update:   nested,
				})
			}
		case "delete":
			for _, item := range items {
				obj := item.(map[string]any)
				pkValue, ok := obj[childPK.Name]
				if !ok {
					return exo.Validationf("nested delete on %q needs %q", child.Name, childPK.Name)
				}
				cast, err := p.castScalar(childPK, pkValue)
				if err != nil {
					return err
				}
				au.NestedDeletes = append(au.NestedDeletes, sqlgraph.NestedDelete{
					Relation: relation,
					Delete: &sqlgraph.AbstractDelete{
						Table: child.TableID,
						Predicate: sqlgraph.Eq(
							sqlgraph.PhysicalPath(sqlgraph.ColumnPathLink{SelfColumn: childPK.Relation.ColumnID}),
							sqlgraph.ParamPath(cast),
						),
					},
				})
			}
		}
	}
	return nil
}

// rejectRelationField refuses client-supplied values for the child column
// that is always filled from the parent's primary key binding.
func (p *planner) rejectRelationField(entityIdx int, relation dbschema.ColumnID, row map[string]any) error {
	entity := p.sys.Entity(entityIdx)
	for _, f := range entity.Fields {
		if f.Relation.Kind == schema.RelationManyToOne && f.Relation.ColumnID == relation {
			if _, supplied := row[f.Name]; supplied {
				return exo.Validationf("field %q of %q is derived from the parent and cannot be supplied", f.Name, entity.Name)
			}
		}
	}
	return nil
}

// planDelete lowers a delete mutation into an abstract delete.
func (p *planner) planDelete(m *schema.Mutation, field *ast.Field) (*sqlgraph.AbstractDelete, error) {
	entity := p.sys.Entity(m.Entity)
	accessPred, err := p.solveAccess(entity.Access.Delete, field.Name)
	if err != nil {
		return nil, err
	}
	args, err := p.validator.validateArguments(p.mutationArgDefs(m), field.Arguments, field.Name)
	if err != nil {
		return nil, err
	}
	pred, err := p.mutationPredicate(m.Kind == schema.DeleteMutation, m.Entity, args)
	if err != nil {
		return nil, err
	}
	selection, err := p.jsonSelection(m.Entity, field.SelectionSet, sqlgraph.CardinalityMany)
	if err != nil {
		return nil, err
	}
	return &sqlgraph.AbstractDelete{
		Table:     entity.TableID,
		Predicate: sqlgraph.And(pred, accessPred),
		Selection: &sqlgraph.AbstractSelect{Table: entity.TableID, Selection: selection},
	}, nil
}

// mutationPredicate derives the target-row predicate: pk equality for
// single-row mutations, the where filter for the many variants.
func (p *planner) mutationPredicate(byPK bool, entityIdx int, args map[string]any) (*sqlgraph.Predicate, error) {
	entity := p.sys.Entity(entityIdx)
	if byPK {
		pk := entity.PKField()
		cast, err := p.castScalar(pk, args[pk.Name])
		if err != nil {
			return nil, err
		}
		return sqlgraph.Eq(
			sqlgraph.PhysicalPath(sqlgraph.ColumnPathLink{SelfColumn: pk.Relation.ColumnID}),
			sqlgraph.ParamPath(cast),
		), nil
	}
	if where, ok := args["where"].(map[string]any); ok {
		return p.wherePredicate(entityIdx, where, nil)
	}
	return sqlgraph.True(), nil
}

package sqlgraph

import (
	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/schema"
)

// InsertScript lowers an abstract insert into a transaction script.
//
// Without nested rows the whole mutation is one statement: the insert runs
// inside a CTE named after the table, and the trailing selection reads from
// it. With nested rows, each parent row becomes a concrete insert step
// returning its primary key, every nested insert becomes a template step
// whose relation column binds to that key, and a dynamic tail select reads
// the inserted rows back.
func (t *Transformer) InsertScript(ai *AbstractInsert) (*sql.TransactionScript, error) {
	script := &sql.TransactionScript{}
	table := t.DB.Table(ai.Table)

	hasNested := false
	for _, row := range ai.Rows {
		if len(row.Nested) > 0 {
			hasNested = true
			break
		}
	}

	if !hasNested {
		insert, err := t.concreteInsert(ai, table, []sql.Column{sql.Star{}})
		if err != nil {
			return nil, err
		}
		script.AddStep(&sql.ConcreteStep{Op: t.withSelection(table, insert, ai.Selection)})
		return script, nil
	}

	pkID, ok := t.DB.PKColumnID(ai.Table)
	if !ok {
		return nil, exo.Internalf("table %q has no primary key", table.Name)
	}
	pk := t.DB.Column(pkID)

	// One root step per row: nested rows bind to the key of their own
	// parent row, not to every inserted row.
	rootIDs := make([]sql.StepID, 0, len(ai.Rows))
	for _, row := range ai.Rows {
		cols, vals, err := t.alignRows(table, []InsertRow{row})
		if err != nil {
			return nil, err
		}
		rootID := script.AddStep(&sql.ConcreteStep{Op: &sql.Insert{
			Table:     table,
			Columns:   cols,
			Rows:      vals,
			Returning: []sql.Column{sql.Physical{Col: pk}},
		}})
		rootIDs = append(rootIDs, rootID)
		for _, nested := range row.Nested {
			if err := t.addNestedInsertSteps(script, nested, rootID); err != nil {
				return nil, err
			}
		}
	}

	t.addDynamicTail(script, ai.Selection, pk, rootIDs)
	return script, nil
}

// UpdateScript lowers an abstract update into a transaction script, folding
// the additional predicate (the solved access predicate) into the root
// WHERE clause.
//
// Without nested operations the update is a single CTE statement. With
// them, the root update returns only the primary keys of the touched rows;
// nested updates and deletes become template steps bound to those keys,
// nested inserts hang off a filter step, and a dynamic tail select re-reads
// the updated rows through the original selection predicate.
func (t *Transformer) UpdateScript(au *AbstractUpdate, additional *sql.Predicate) (*sql.TransactionScript, error) {
	script := &sql.TransactionScript{}
	table := t.DB.Table(au.Table)

	pred := t.ToSubselectPredicate(au.Predicate)
	if additional != nil {
		pred = sql.And(pred, additional)
	}

	pkID, ok := t.DB.PKColumnID(au.Table)
	if !ok {
		return nil, exo.Internalf("table %q has no primary key", table.Name)
	}
	pk := t.DB.Column(pkID)

	assignments := make([]sql.Assignment, len(au.Values))
	for i, cv := range au.Values {
		assignments[i] = sql.Assignment{Col: t.DB.Column(cv.Col), Value: cv.Value}
	}
	// An update that only carries nested operations still needs a root
	// statement to produce the parent keys; a pk self-assignment keeps it
	// a no-op on the row.
	if len(assignments) == 0 {
		assignments = []sql.Assignment{{Col: pk, Value: sql.Physical{Col: pk}}}
	}

	hasNested := len(au.NestedUpdates) > 0 || len(au.NestedInserts) > 0 || len(au.NestedDeletes) > 0

	if !hasNested {
		update := &sql.Update{
			Table:     table,
			Predicate: pred,
			Columns:   assignments,
			Returning: []sql.Column{sql.Star{}},
		}
		script.AddStep(&sql.ConcreteStep{Op: t.withSelection(table, update, au.Selection)})
		return script, nil
	}

	// Root step: touch the rows and return only their primary keys, which
	// become the proxy values every nested step binds against.
	rootID := script.AddStep(&sql.ConcreteStep{Op: &sql.Update{
		Table:     table,
		Predicate: pred,
		Columns:   assignments,
		Returning: []sql.Column{sql.Physical{Col: pk}},
	}})

	for _, nu := range au.NestedUpdates {
		child := t.DB.Table(nu.Update.Table)
		childAssignments := make([]sql.Assignment, len(nu.Update.Values))
		for i, cv := range nu.Update.Values {
			childAssignments[i] = sql.Assignment{Col: t.DB.Column(cv.Col), Value: cv.Value}
		}
		childPred := sql.And(
			t.ToPredicate(nu.Update.Predicate),
			sql.Eq(
				sql.Physical{Col: t.DB.Column(nu.Relation)},
				sql.TemplateParam{StepID: rootID, ColIndex: 0},
			),
		)
		script.AddStep(&sql.TemplateStep{
			Op:         &sql.Update{Table: child, Predicate: childPred, Columns: childAssignments},
			PrevStepID: rootID,
		})
	}

	for _, set := range au.NestedInserts {
		// An unconditional insert set binds straight to the root step; a
		// filter step is only materialized when the set carries its own
		// predicate over the parent rows.
		parent := rootID
		if !set.FilterPredicate.IsTrue() && set.FilterPredicate != nil {
			parent = script.AddStep(&sql.FilterStep{
				Table:      table,
				PrevStepID: rootID,
				Predicate:  t.ToPredicate(set.FilterPredicate),
			})
		}
		for _, nested := range set.Ops {
			if err := t.addNestedInsertSteps(script, nested, parent); err != nil {
				return nil, err
			}
		}
	}

	for _, nd := range au.NestedDeletes {
		child := t.DB.Table(nd.Delete.Table)
		childPred := sql.And(
			t.ToPredicate(nd.Delete.Predicate),
			sql.Eq(
				sql.Physical{Col: t.DB.Column(nd.Relation)},
				sql.TemplateParam{StepID: rootID, ColIndex: 0},
			),
		)
		script.AddStep(&sql.TemplateStep{
			Op:         &sql.Delete{Table: child, Predicate: childPred},
			PrevStepID: rootID,
		})
	}

	t.addDynamicTail(script, au.Selection, pk, []sql.StepID{rootID})
	return script, nil
}

// DeleteScript lowers an abstract delete: the delete runs inside a CTE and
// the trailing selection reads the deleted rows from it.
func (t *Transformer) DeleteScript(ad *AbstractDelete, additional *sql.Predicate) (*sql.TransactionScript, error) {
	script := &sql.TransactionScript{}
	table := t.DB.Table(ad.Table)

	pred := t.ToSubselectPredicate(ad.Predicate)
	if additional != nil {
		pred = sql.And(pred, additional)
	}
	del := &sql.Delete{
		Table:     table,
		Predicate: pred,
		Returning: []sql.Column{sql.Star{}},
	}
	script.AddStep(&sql.ConcreteStep{Op: t.withSelection(table, del, ad.Selection)})
	return script, nil
}

// concreteInsert builds one INSERT covering all rows, with the returning
// clause supplied by the caller.
func (t *Transformer) concreteInsert(ai *AbstractInsert, table *schema.Table, returning []sql.Column) (*sql.Insert, error) {
	cols, vals, err := t.alignRows(table, ai.Rows)
	if err != nil {
		return nil, err
	}
	insert := &sql.Insert{Table: table, Columns: cols, Rows: vals, Returning: returning}
	if ai.OnConflict != nil {
		oc := &sql.OnConflict{}
		for _, id := range ai.OnConflict.Conflict {
			oc.Columns = append(oc.Columns, t.DB.Column(id))
		}
		for _, id := range ai.OnConflict.Update {
			oc.Update = append(oc.Update, t.DB.Column(id))
		}
		insert.OnConflict = oc
	}
	return insert, nil
}

// alignRows computes the union of columns across rows, in first-appearance
// order, and pads each row with DEFAULT for columns it does not set.
func (t *Transformer) alignRows(table *schema.Table, rows []InsertRow) ([]*schema.Column, [][]sql.Column, error) {
	var colIDs []schema.ColumnID
	index := map[schema.ColumnID]int{}
	for _, row := range rows {
		for _, cv := range row.Values {
			if _, ok := index[cv.Col]; !ok {
				index[cv.Col] = len(colIDs)
				colIDs = append(colIDs, cv.Col)
			}
		}
	}
	cols := make([]*schema.Column, len(colIDs))
	for i, id := range colIDs {
		cols[i] = t.DB.Column(id)
	}
	vals := make([][]sql.Column, len(rows))
	for r, row := range rows {
		vals[r] = make([]sql.Column, len(cols))
		for i := range vals[r] {
			vals[r][i] = sql.DefaultVal{}
		}
		for _, cv := range row.Values {
			vals[r][index[cv.Col]] = cv.Value
		}
	}
	return cols, vals, nil
}

// addNestedInsertSteps emits one template insert per nested row, binding the
// relation column to the parent step's first result column. The relation
// column is always filled from the binding; a client-supplied value for it
// never reaches this point.
func (t *Transformer) addNestedInsertSteps(script *sql.TransactionScript, nested NestedInsert, parent sql.StepID) error {
	child := t.DB.Table(nested.Insert.Table)
	relation := t.DB.Column(nested.Relation)
	for _, row := range nested.Insert.Rows {
		cols, vals, err := t.alignRows(child, []InsertRow{row})
		if err != nil {
			return err
		}
		cols = append(cols, relation)
		vals[0] = append(vals[0], sql.TemplateParam{StepID: parent, ColIndex: 0})
		// Grandchild rows would need the child's key, which template inserts
		// do not return; deeper nestings are rejected here.
		if len(row.Nested) > 0 {
			return exo.Internalf("nested insert below the first level is not supported")
		}
		script.AddStep(&sql.TemplateStep{
			Op:         &sql.Insert{Table: child, Columns: cols, Rows: vals},
			PrevStepID: parent,
		})
	}
	return nil
}

// addDynamicTail appends the dynamic tail step: at execution it reads the
// primary keys the root steps produced and selects the touched rows through
// the operation's own selection.
func (t *Transformer) addDynamicTail(script *sql.TransactionScript, selection *AbstractSelect, pk *schema.Column, rootIDs []sql.StepID) {
	if selection == nil {
		return
	}
	sel := t.ToSelect(selection, nil, nil, TopLevel)
	script.AddStep(&sql.DynamicStep{
		Fn: func(tc *sql.TransactionContext) sql.SQLOperation {
			var ids []any
			for _, rootID := range rootIDs {
				for i := 0; i < tc.RowCount(rootID); i++ {
					ids = append(ids, tc.Resolve(rootID, i, 0))
				}
			}
			out := *sel
			pred := sql.Eq(sql.Physical{Col: pk}, sql.ArrayParam{Values: ids, Wrapper: sql.WrapperAny})
			if sel.Predicate != nil {
				pred = sql.And(pred, sel.Predicate)
			}
			out.Predicate = pred
			return &out
		},
	})
}

// withSelection wraps a RETURNING operation in a CTE named after its table
// and reads the trailing selection from it. Without a selection the
// operation stands alone.
func (t *Transformer) withSelection(table *schema.Table, op sql.SQLOperation, selection *AbstractSelect) sql.SQLOperation {
	if selection == nil {
		return op
	}
	return sql.Cte{
		Queries: []sql.WithQuery{{Name: table.Name, Op: op}},
		Select:  t.ToSelect(selection, nil, nil, TopLevel),
	}
}

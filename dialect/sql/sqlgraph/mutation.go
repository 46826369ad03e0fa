package sqlgraph

import (
	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/schema"
)

// ColumnValue assigns a concrete value expression to a column.
type ColumnValue struct {
	Col   schema.ColumnID
	Value sql.Column
}

// InsertRow is one row of an abstract insert: the values for this table's
// columns plus the nested operations on child tables.
type InsertRow struct {
	Values []ColumnValue
	Nested []NestedInsert
}

// AbstractInsert inserts one or more rows, then evaluates a trailing
// selection over what was inserted.
type AbstractInsert struct {
	Table     schema.TableID
	Rows      []InsertRow
	Selection *AbstractSelect

	// OnConflict, when set, turns the insert into an upsert.
	OnConflict *AbstractOnConflict
}

// AbstractOnConflict mirrors ON CONFLICT (...) DO UPDATE SET.
type AbstractOnConflict struct {
	Conflict []schema.ColumnID
	Update   []schema.ColumnID
}

// NestedInsert is a child-table insert whose relation column is always
// filled from the parent's primary key, never by the client.
type NestedInsert struct {
	// Relation is the child column holding the foreign key to the parent.
	Relation schema.ColumnID
	Insert   *AbstractInsert
}

// NestedInsertSet groups the nested inserts of an update behind the filter
// predicate selecting the parent rows they apply to.
type NestedInsertSet struct {
	FilterPredicate *Predicate
	Ops             []NestedInsert
}

// NestedUpdate is a child-table update bound to the parent rows.
type NestedUpdate struct {
	Relation schema.ColumnID
	Update   *AbstractUpdate
}

// NestedDelete is a child-table delete bound to the parent rows.
type NestedDelete struct {
	Relation schema.ColumnID
	Delete   *AbstractDelete
}

// AbstractUpdate updates rows matching a predicate, applies nested child
// operations, and evaluates a trailing selection over the updated rows.
type AbstractUpdate struct {
	Table     schema.TableID
	Predicate *Predicate
	Values    []ColumnValue

	NestedUpdates []NestedUpdate
	NestedInserts []NestedInsertSet
	NestedDeletes []NestedDelete

	Selection *AbstractSelect
}

// AbstractDelete deletes rows matching a predicate and evaluates a trailing
// selection over the deleted rows.
type AbstractDelete struct {
	Table     schema.TableID
	Predicate *Predicate
	Selection *AbstractSelect
}

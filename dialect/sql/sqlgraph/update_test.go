package sqlgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/schema"
)

// scenarioUpdate builds the abstract form of
// updateConcert(id:4, data:{title:"t2", artists:{create:[{name:"a"}], delete:[{id:9}]}}).
func scenarioUpdate(s *testSetup) *AbstractUpdate {
	return &AbstractUpdate{
		Table: s.concerts,
		Predicate: Eq(
			PhysicalPath(ColumnPathLink{SelfColumn: s.concertID}),
			ParamPath(int64(4)),
		),
		Values: []ColumnValue{{Col: s.concertTitle, Value: sql.Param{Value: "t2"}}},
		NestedInserts: []NestedInsertSet{{
			Ops: []NestedInsert{{
				Relation: s.artistConcert,
				Insert: &AbstractInsert{
					Table: s.artists,
					Rows: []InsertRow{{
						Values: []ColumnValue{{Col: s.artistName, Value: sql.Param{Value: "a"}}},
					}},
				},
			}},
		}},
		NestedDeletes: []NestedDelete{{
			Relation: s.artistConcert,
			Delete: &AbstractDelete{
				Table: s.artists,
				Predicate: Eq(
					PhysicalPath(ColumnPathLink{SelfColumn: s.artistID}),
					ParamPath(int64(9)),
				),
			},
		}},
		Selection: &AbstractSelect{
			Table: s.concerts,
			Selection: JsonSelection(CardinalityMany,
				ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.concertID}},
			),
		},
	}
}

func TestMultiStatementUpdate(t *testing.T) {
	s := newTestSetup()
	script, err := s.t.UpdateScript(scenarioUpdate(s), nil)
	require.NoError(t, err)

	steps := script.Steps()
	require.Len(t, steps, 4)

	// Root update returns only the primary key.
	root, ok := steps[0].(*sql.ConcreteStep)
	require.True(t, ok)
	query, args := sql.Build(root.Op)
	assert.Equal(t, `UPDATE "concerts" SET "title" = $1 WHERE "concerts"."id" = $2 RETURNING "concerts"."id"`, query)
	assert.Equal(t, []any{"t2", int64(4)}, args)

	// The nested create binds the relation column to the root step's key.
	insertStep, ok := steps[1].(*sql.TemplateStep)
	require.True(t, ok)
	assert.Equal(t, sql.StepID(0), insertStep.PrevStepID)
	tc := sql.NewTransactionContext()
	tc.SetResult(0, &sql.StepResult{Columns: []string{"id"}, Rows: [][]any{{int64(4)}}})
	query, args = sql.Build(insertStep.Resolve(tc, 0))
	assert.Equal(t, `INSERT INTO "artists" ("name", "concert_id") VALUES ($1, $2)`, query)
	assert.Equal(t, []any{"a", int64(4)}, args)

	// The nested delete keeps its own predicate and the binding.
	deleteStep, ok := steps[2].(*sql.TemplateStep)
	require.True(t, ok)
	assert.Equal(t, sql.StepID(0), deleteStep.PrevStepID)
	query, args = sql.Build(deleteStep.Resolve(tc, 0))
	assert.Equal(t, `DELETE FROM "artists" WHERE ("artists"."id" = $1 AND "artists"."concert_id" = $2)`, query)
	assert.Equal(t, []any{int64(9), int64(4)}, args)

	// The dynamic tail selects the updated rows by returned keys.
	tail, ok := steps[3].(*sql.DynamicStep)
	require.True(t, ok)
	query, args = sql.Build(tail.Fn(tc))
	assert.Equal(t,
		`SELECT coalesce(json_agg(json_build_object('id', "concerts"."id")), '[]'::json)::text FROM "concerts" WHERE "concerts"."id" = ANY($1)`,
		query)
	require.Len(t, args, 1)
}

func TestSingleStatementUpdate(t *testing.T) {
	s := newTestSetup()
	au := &AbstractUpdate{
		Table: s.concerts,
		Predicate: Eq(
			PhysicalPath(ColumnPathLink{SelfColumn: s.concertID}),
			ParamPath(int64(4)),
		),
		Values: []ColumnValue{{Col: s.concertTitle, Value: sql.Param{Value: "t2"}}},
		Selection: &AbstractSelect{
			Table: s.concerts,
			Selection: JsonSelection(CardinalityMany,
				ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.concertID}},
			),
		},
	}
	script, err := s.t.UpdateScript(au, nil)
	require.NoError(t, err)
	require.Equal(t, 1, script.Len())

	step := script.Steps()[0].(*sql.ConcreteStep)
	query, args := sql.Build(step.Op)
	assert.Equal(t,
		`WITH "concerts" AS (UPDATE "concerts" SET "title" = $1 WHERE "concerts"."id" = $2 RETURNING *) SELECT coalesce(json_agg(json_build_object('id', "concerts"."id")), '[]'::json)::text FROM "concerts"`,
		query)
	assert.Equal(t, []any{"t2", int64(4)}, args)
}

// Template binding order: every template or filter step points at an
// earlier step of the script.
func TestTemplateBindingInvariant(t *testing.T) {
	s := newTestSetup()
	script, err := s.t.UpdateScript(scenarioUpdate(s), nil)
	require.NoError(t, err)

	for i, step := range script.Steps() {
		switch step := step.(type) {
		case *sql.TemplateStep:
			assert.Less(t, int(step.PrevStepID), i, "template step %d must follow its source", i)
		case *sql.FilterStep:
			assert.Less(t, int(step.PrevStepID), i, "filter step %d must follow its source", i)
		}
	}
}

func TestInsertScriptWithNestedRows(t *testing.T) {
	s := newTestSetup()
	ai := &AbstractInsert{
		Table: s.concerts,
		Rows: []InsertRow{{
			Values: []ColumnValue{
				{Col: s.concertTitle, Value: sql.Param{Value: "c1"}},
				{Col: s.concertVenueID, Value: sql.Param{Value: int64(1)}},
			},
			Nested: []NestedInsert{{
				Relation: s.artistConcert,
				Insert: &AbstractInsert{
					Table: s.artists,
					Rows: []InsertRow{
						{Values: []ColumnValue{{Col: s.artistName, Value: sql.Param{Value: "a1"}}}},
						{Values: []ColumnValue{{Col: s.artistName, Value: sql.Param{Value: "a2"}}}},
					},
				},
			}},
		}},
		Selection: &AbstractSelect{
			Table: s.concerts,
			Selection: JsonSelection(CardinalityMany,
				ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.concertID}},
			),
		},
	}
	script, err := s.t.InsertScript(ai)
	require.NoError(t, err)
	// Root insert, two template inserts, dynamic tail.
	require.Equal(t, 4, script.Len())

	root := script.Steps()[0].(*sql.ConcreteStep)
	query, args := sql.Build(root.Op)
	assert.Equal(t, `INSERT INTO "concerts" ("title", "venue_id") VALUES ($1, $2) RETURNING "concerts"."id"`, query)
	assert.Equal(t, []any{"c1", int64(1)}, args)
}

func TestInsertWithoutNestedUsesCte(t *testing.T) {
	s := newTestSetup()
	ai := &AbstractInsert{
		Table: s.concerts,
		Rows: []InsertRow{
			{Values: []ColumnValue{{Col: s.concertTitle, Value: sql.Param{Value: "c1"}}}},
			{Values: []ColumnValue{{Col: s.concertVenueID, Value: sql.Param{Value: int64(2)}}}},
		},
		Selection: &AbstractSelect{
			Table: s.concerts,
			Selection: JsonSelection(CardinalityMany,
				ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.concertID}},
			),
		},
	}
	script, err := s.t.InsertScript(ai)
	require.NoError(t, err)
	require.Equal(t, 1, script.Len())

	step := script.Steps()[0].(*sql.ConcreteStep)
	query, args := sql.Build(step.Op)
	// Missing columns align as DEFAULT across the row union.
	assert.Equal(t,
		`WITH "concerts" AS (INSERT INTO "concerts" ("title", "venue_id") VALUES ($1, DEFAULT), (DEFAULT, $2) RETURNING *) SELECT coalesce(json_agg(json_build_object('id', "concerts"."id")), '[]'::json)::text FROM "concerts"`,
		query)
	assert.Equal(t, []any{"c1", int64(2)}, args)
}

func TestInsertOnConflict(t *testing.T) {
	s := newTestSetup()
	ai := &AbstractInsert{
		Table: s.concerts,
		Rows: []InsertRow{
			{Values: []ColumnValue{{Col: s.concertTitle, Value: sql.Param{Value: "c1"}}}},
		},
		OnConflict: &AbstractOnConflict{
			Conflict: []schema.ColumnID{s.concertID},
			Update:   []schema.ColumnID{s.concertTitle},
		},
	}
	script, err := s.t.InsertScript(ai)
	require.NoError(t, err)
	step := script.Steps()[0].(*sql.ConcreteStep)
	query, _ := sql.Build(step.Op)
	assert.Equal(t,
		`INSERT INTO "concerts" ("title") VALUES ($1) ON CONFLICT ("id") DO UPDATE SET "title" = EXCLUDED."title" RETURNING *`,
		query)
}

func TestDeleteScript(t *testing.T) {
	s := newTestSetup()
	ad := &AbstractDelete{
		Table: s.concerts,
		Predicate: Eq(
			PhysicalPath(ColumnPathLink{SelfColumn: s.concertID}),
			ParamPath(int64(7)),
		),
		Selection: &AbstractSelect{
			Table: s.concerts,
			Selection: JsonSelection(CardinalityMany,
				ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.concertID}},
			),
		},
	}
	script, err := s.t.DeleteScript(ad, nil)
	require.NoError(t, err)
	require.Equal(t, 1, script.Len())

	step := script.Steps()[0].(*sql.ConcreteStep)
	query, args := sql.Build(step.Op)
	assert.Equal(t,
		`WITH "concerts" AS (DELETE FROM "concerts" WHERE "concerts"."id" = $1 RETURNING *) SELECT coalesce(json_agg(json_build_object('id', "concerts"."id")), '[]'::json)::text FROM "concerts"`,
		query)
	assert.Equal(t, []any{int64(7)}, args)
}

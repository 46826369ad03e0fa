package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect/sql/sqltype"
)

func intCol(table, name string, pk bool) *Column {
	return &Column{TableName: table, Name: name, Type: sqltype.Int{Bits: sqltype.Bits32}, IsPK: pk}
}

func textCol(table, name string) *Column {
	return &Column{TableName: table, Name: name, Type: sqltype.String{}}
}

func tableA(extra ...*Column) *Database {
	cols := append([]*Column{intCol("a", "id", true), textCol("a", "name")}, extra...)
	return &Database{Tables: []*Table{{Name: "a", Columns: cols}}}
}

func TestDiffSelfIsEmpty(t *testing.T) {
	specs := []*Database{
		{},
		tableA(),
		tableA(&Column{TableName: "a", Name: "age", Type: sqltype.Int{Bits: sqltype.Bits32}}),
		{
			Tables: []*Table{{
				Name: "b",
				Columns: []*Column{
					intCol("b", "id", true),
					{TableName: "b", Name: "a_id", Type: sqltype.Int{Bits: sqltype.Bits32}, References: &Reference{Table: "a", Column: "id"}},
				},
				Indexes: []*Index{{Name: "b_a_id_idx", Columns: []string{"a_id"}}},
			}},
			Enums: []*EnumSpec{{Name: "mood", Values: []string{"happy", "sad"}}},
		},
	}
	for _, spec := range specs {
		m, err := Diff(spec, spec, DiffOptions{})
		require.NoError(t, err)
		assert.Empty(t, m.Statements)
	}
}

func TestDiffAddColumn(t *testing.T) {
	old := tableA()
	updated := tableA(&Column{TableName: "a", Name: "age", Type: sqltype.Int{Bits: sqltype.Bits32}})

	m, err := Diff(old, updated, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `ALTER TABLE "a" ADD COLUMN "age" INTEGER NOT NULL`, m.Statements[0].Statement)
	assert.False(t, m.Statements[0].IsDestructive)

	// The reverse drops the column, destructively.
	m, err = Diff(updated, old, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `ALTER TABLE "a" DROP COLUMN "age"`, m.Statements[0].Statement)
	assert.True(t, m.Statements[0].IsDestructive)
}

func TestDiffCreateAndDropTable(t *testing.T) {
	empty := &Database{}
	spec := tableA()

	m, err := Diff(empty, spec, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `CREATE TABLE "a" ("id" INTEGER PRIMARY KEY, "name" TEXT NOT NULL)`, m.Statements[0].Statement)

	m, err = Diff(spec, empty, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `DROP TABLE "a" CASCADE`, m.Statements[0].Statement)
	assert.True(t, m.Statements[0].IsDestructive)
}

func TestDiffForeignKeysAfterCreates(t *testing.T) {
	spec := &Database{Tables: []*Table{
		{Name: "concerts", Columns: []*Column{
			intCol("concerts", "id", true),
			{TableName: "concerts", Name: "venue_id", Type: sqltype.Int{Bits: sqltype.Bits32}, References: &Reference{Table: "venues", Column: "id"}},
		}},
		{Name: "venues", Columns: []*Column{intCol("venues", "id", true)}},
	}}
	m, err := Diff(&Database{}, spec, DiffOptions{})
	require.NoError(t, err)

	var creates, fks []int
	for i, s := range m.Statements {
		if strings.HasPrefix(s.Statement, "CREATE TABLE") {
			creates = append(creates, i)
		}
		if strings.Contains(s.Statement, "FOREIGN KEY") {
			fks = append(fks, i)
		}
	}
	require.Len(t, creates, 2)
	require.Len(t, fks, 1)
	assert.Greater(t, fks[0], creates[len(creates)-1], "foreign keys must follow all creates")
	assert.Equal(t,
		`ALTER TABLE "concerts" ADD CONSTRAINT "concerts_venue_id_fk" FOREIGN KEY ("venue_id") REFERENCES "venues" ("id")`,
		m.Statements[fks[0]].Statement)
}

func TestDiffTypeChange(t *testing.T) {
	old := tableA(&Column{TableName: "a", Name: "n", Type: sqltype.Int{Bits: sqltype.Bits64}})
	widened := tableA(&Column{TableName: "a", Name: "n", Type: sqltype.Int{Bits: sqltype.Bits32}})

	// Narrowing 64 -> 32 bits is destructive.
	m, err := Diff(old, widened, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.True(t, m.Statements[0].IsDestructive)

	// Widening 32 -> 64 bits is not.
	m, err = Diff(widened, old, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `ALTER TABLE "a" ALTER COLUMN "n" SET DATA TYPE BIGINT`, m.Statements[0].Statement)
	assert.False(t, m.Statements[0].IsDestructive)
}

func TestDiffRenameInteraction(t *testing.T) {
	old := &Database{Tables: []*Table{{Name: "old_name", Columns: []*Column{intCol("old_name", "id", true)}}}}
	updated := &Database{Tables: []*Table{{Name: "new_name", Columns: []*Column{intCol("new_name", "id", true)}}}}

	// Without an interaction the table is dropped and recreated.
	m, err := Diff(old, updated, DiffOptions{})
	require.NoError(t, err)
	assert.True(t, m.HasDestructiveChanges())

	// With a rename action only the rename is emitted.
	m, err = Diff(old, updated, DiffOptions{Interaction: &PredefinedMigrationInteraction{
		TableActions: []TableAction{{Kind: ActionRename, Table: "old_name", RenameTo: "new_name"}},
	}})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `ALTER TABLE "old_name" RENAME TO "new_name"`, m.Statements[0].Statement)
	assert.False(t, m.HasDestructiveChanges())
}

func TestDiffRenameTargetAbsent(t *testing.T) {
	old := &Database{Tables: []*Table{{Name: "old_name", Columns: []*Column{intCol("old_name", "id", true)}}}}

	_, err := Diff(old, &Database{}, DiffOptions{Interaction: &PredefinedMigrationInteraction{
		TableActions: []TableAction{{Kind: ActionRename, Table: "old_name", RenameTo: "missing"}},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, exo.ErrMigration)
}

func TestDiffDeferKeepsTable(t *testing.T) {
	old := tableA()
	m, err := Diff(old, &Database{}, DiffOptions{Interaction: &PredefinedMigrationInteraction{
		TableActions: []TableAction{{Kind: ActionDefer, Table: "a"}},
	}})
	require.NoError(t, err)
	assert.Empty(t, m.Statements)
}

func TestDiffScopeFromNewSpec(t *testing.T) {
	old := &Database{Tables: []*Table{
		{SchemaName: "analytics", Name: "events", Columns: []*Column{intCol("events", "id", true)}},
		{Name: "a", Columns: []*Column{intCol("a", "id", true)}},
	}}
	updated := &Database{Tables: []*Table{
		{Name: "a", Columns: []*Column{intCol("a", "id", true)}},
	}}

	// AllSchemas drops the out-of-scope table.
	m, err := Diff(old, updated, DiffOptions{Scope: ScopeAllSchemas})
	require.NoError(t, err)
	assert.True(t, m.HasDestructiveChanges())

	// FromNewSpec leaves schemas the new spec does not declare untouched.
	m, err = Diff(old, updated, DiffOptions{Scope: ScopeFromNewSpec})
	require.NoError(t, err)
	assert.Empty(t, m.Statements)
}

func TestMigrationWriteMarksDestructive(t *testing.T) {
	m := Migration{Statements: []MigrationStatement{
		{Statement: `ALTER TABLE "a" ADD COLUMN "age" INTEGER NOT NULL`},
		{Statement: `ALTER TABLE "a" DROP COLUMN "name"`, IsDestructive: true},
	}}

	var sb strings.Builder
	require.NoError(t, m.Write(&sb, false))
	assert.Equal(t,
		"ALTER TABLE \"a\" ADD COLUMN \"age\" INTEGER NOT NULL;\n-- ALTER TABLE \"a\" DROP COLUMN \"name\";\n",
		sb.String())

	sb.Reset()
	require.NoError(t, m.Write(&sb, true))
	assert.NotContains(t, sb.String(), "-- ")
}

func TestDiffEnums(t *testing.T) {
	old := &Database{}
	updated := &Database{Enums: []*EnumSpec{{Name: "mood", Values: []string{"happy", "sad"}}}}

	m, err := Diff(old, updated, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.Equal(t, `CREATE TYPE "mood" AS ENUM ('happy', 'sad')`, m.Statements[0].Statement)

	m, err = Diff(updated, old, DiffOptions{})
	require.NoError(t, err)
	require.Len(t, m.Statements, 1)
	assert.True(t, m.Statements[0].IsDestructive)
}

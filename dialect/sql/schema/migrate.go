package schema

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect/sql/sqltype"
)

// MigrationStatement is one step of a migration program. Destructive
// statements (drops, column removals, type narrowing) are flagged so callers
// can refuse or comment them out for review.
type MigrationStatement struct {
	Statement     string
	IsDestructive bool
}

// Migration is an ordered migration program.
type Migration struct {
	Statements []MigrationStatement
}

// Empty reports whether the migration has no statements.
func (m Migration) Empty() bool { return len(m.Statements) == 0 }

// HasDestructiveChanges reports whether any statement is destructive.
func (m Migration) HasDestructiveChanges() bool {
	for _, s := range m.Statements {
		if s.IsDestructive {
			return true
		}
	}
	return false
}

// Write emits the migration as a sequence of "<sql>;" lines. Unless
// allowDestructive is set, destructive statements are prefixed with "-- ",
// marking them planned but not applied; readers of the output must preserve
// that a line starting with "-- " is a destructive entry.
func (m Migration) Write(w io.Writer, allowDestructive bool) error {
	for _, s := range m.Statements {
		prefix := ""
		if s.IsDestructive && !allowDestructive {
			prefix = "-- "
		}
		if _, err := fmt.Fprintf(w, "%s%s;\n", prefix, s.Statement); err != nil {
			return err
		}
	}
	return nil
}

// MigrationScope controls which Postgres schemas participate in the diff.
type MigrationScope int

// Scopes.
const (
	// ScopeAllSchemas diffs every schema present in either spec.
	ScopeAllSchemas MigrationScope = iota
	// ScopeFromNewSpec restricts the diff to schemas the new spec declares;
	// tables of other schemas in the old spec are left untouched.
	ScopeFromNewSpec
)

// TableActionKind discriminates user-supplied migration interactions.
type TableActionKind int

// Table actions.
const (
	// ActionRename renames an old table to its new-spec name instead of
	// dropping and recreating it.
	ActionRename TableActionKind = iota
	// ActionDefer leaves a table that disappeared from the new spec in
	// place; no drop is emitted.
	ActionDefer
	// ActionDelete confirms the drop of a disappeared table.
	ActionDelete
)

// TableAction is one user-guided decision about a table.
type TableAction struct {
	Kind TableActionKind `yaml:"kind"`
	// Table is the old-spec table name the action applies to.
	Table string `yaml:"table"`
	// RenameTo is the new-spec name for ActionRename.
	RenameTo string `yaml:"rename_to,omitempty"`
}

// PredefinedMigrationInteraction supplies table actions up front, so a diff
// can run without prompting.
type PredefinedMigrationInteraction struct {
	TableActions []TableAction `yaml:"table_actions"`
}

func (p *PredefinedMigrationInteraction) action(table string) (TableAction, bool) {
	if p == nil {
		return TableAction{}, false
	}
	for _, a := range p.TableActions {
		if a.Table == table {
			return a, true
		}
	}
	return TableAction{}, false
}

// DiffOptions configures a diff.
type DiffOptions struct {
	Scope       MigrationScope
	Interaction *PredefinedMigrationInteraction
}

// Diff computes the ordered migration program that takes the old database
// layout to the new one. Diffing a spec against itself yields an empty
// migration.
func Diff(oldSpec, newSpec *Database, opts DiffOptions) (Migration, error) {
	var m Migration

	oldTables := tablesInScope(oldSpec, newSpec, opts.Scope)
	newTables := tableMap(newSpec)

	// Validate interactions before emitting anything: a rename whose source
	// or target is absent makes the whole plan inconsistent.
	renames := map[string]string{} // old name -> new name
	if opts.Interaction != nil {
		for _, a := range opts.Interaction.TableActions {
			if a.Kind != ActionRename {
				continue
			}
			if _, ok := oldTables[a.Table]; !ok {
				return Migration{}, exo.Migrationf("rename source table %q not present in the old spec", a.Table)
			}
			if _, ok := newTables[a.RenameTo]; !ok {
				return Migration{}, exo.Migrationf("rename target table %q not present in the new spec", a.RenameTo)
			}
			renames[a.Table] = a.RenameTo
		}
	}

	// Enum types are created before any table that uses them.
	diffEnums(&m, oldSpec, newSpec)

	// Deterministic order: sorted by qualified name.
	oldNames := sortedKeys(oldTables)
	newNames := sortedKeys(newTables)

	// Renames first, so later column diffs run against the new name.
	for _, oldName := range oldNames {
		if newName, ok := renames[oldName]; ok {
			old := oldTables[oldName]
			m.add(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", old.SQLName(), quote(newTables[newName].Name)), false)
		}
	}

	// Dropped tables.
	for _, name := range oldNames {
		if _, kept := newTables[name]; kept {
			continue
		}
		if _, renamed := renames[name]; renamed {
			continue
		}
		if a, ok := opts.Interaction.action(name); ok && a.Kind == ActionDefer {
			continue
		}
		m.add(fmt.Sprintf("DROP TABLE %s CASCADE", oldTables[name].SQLName()), true)
	}

	// Added tables, then their foreign keys and indexes. Foreign keys are
	// emitted after all CREATE TABLE statements so creation order does not
	// matter for cyclic references.
	var added []*Table
	for _, name := range newNames {
		if _, existed := oldTables[name]; existed {
			continue
		}
		if renamedInto(renames, name) {
			continue
		}
		t := newTables[name]
		m.add(createTable(t), false)
		added = append(added, t)
	}
	for _, t := range added {
		for _, c := range t.Columns {
			if c.References != nil {
				m.add(addForeignKey(t, c), false)
			}
		}
		for _, idx := range t.Indexes {
			m.add(createIndex(t, idx), false)
		}
	}

	// Retained tables: column and index level diff.
	for _, name := range newNames {
		newTable := newTables[name]
		oldTable, existed := oldTables[name]
		if !existed {
			oldTable = renameSource(renames, oldTables, name)
			if oldTable == nil {
				continue
			}
		}
		diffTable(&m, oldTable, newTable)
	}

	return m, nil
}

func (m *Migration) add(stmt string, destructive bool) {
	m.Statements = append(m.Statements, MigrationStatement{Statement: stmt, IsDestructive: destructive})
}

func diffEnums(m *Migration, oldSpec, newSpec *Database) {
	oldEnums := map[string]*EnumSpec{}
	for _, e := range oldSpec.Enums {
		oldEnums[e.Name] = e
	}
	newEnums := map[string]*EnumSpec{}
	for _, e := range newSpec.Enums {
		newEnums[e.Name] = e
	}
	for _, name := range sortedKeys(newEnums) {
		if _, ok := oldEnums[name]; ok {
			continue
		}
		e := newEnums[name]
		values := make([]string, len(e.Values))
		for i, v := range e.Values {
			values[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		m.add(fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", quote(e.Name), strings.Join(values, ", ")), false)
	}
	for _, name := range sortedKeys(oldEnums) {
		if _, ok := newEnums[name]; !ok {
			m.add(fmt.Sprintf("DROP TYPE %s", quote(name)), true)
		}
	}
}

func diffTable(m *Migration, oldTable, newTable *Table) {
	// Column additions.
	for _, c := range newTable.Columns {
		if oldTable.Column(c.Name) == nil {
			m.add(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", newTable.SQLName(), c.DDL()), false)
			if c.References != nil {
				m.add(addForeignKey(newTable, c), false)
			}
		}
	}

	// Column drops.
	for _, c := range oldTable.Columns {
		if newTable.Column(c.Name) == nil {
			m.add(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", newTable.SQLName(), quote(c.Name)), true)
		}
	}

	// Retained columns.
	for _, newCol := range newTable.Columns {
		oldCol := oldTable.Column(newCol.Name)
		if oldCol == nil || oldCol.Equal(newCol) {
			continue
		}
		if !oldCol.Type.Equal(newCol.Type) {
			m.add(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DATA TYPE %s",
				newTable.SQLName(), quote(newCol.Name), newCol.Type.TypeString()),
				narrowing(oldCol.Type, newCol.Type))
		}
		if oldCol.Nullable && !newCol.Nullable {
			m.add(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", newTable.SQLName(), quote(newCol.Name)), false)
		} else if !oldCol.Nullable && newCol.Nullable {
			m.add(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", newTable.SQLName(), quote(newCol.Name)), false)
		}
		if oldCol.IsPK != newCol.IsPK {
			if oldCol.IsPK {
				m.add(fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", newTable.SQLName(), quote(newTable.Name+"_pkey")), true)
			} else {
				m.add(fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", newTable.SQLName(), quote(newCol.Name)), false)
			}
		}
		if !referencesEqual(oldCol.References, newCol.References) {
			if oldCol.References != nil {
				m.add(fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
					newTable.SQLName(), quote(fkConstraintName(newTable.Name, newCol.Name))), true)
			}
			if newCol.References != nil {
				m.add(addForeignKey(newTable, newCol), false)
			}
		}
		if oldCol.Unique != newCol.Unique {
			constraint := quote(newTable.Name + "_" + newCol.Name + "_key")
			if newCol.Unique {
				m.add(fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", newTable.SQLName(), constraint, quote(newCol.Name)), false)
			} else {
				m.add(fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", newTable.SQLName(), constraint), true)
			}
		}
		if !defaultsEqual(oldCol.Default, newCol.Default) {
			if newCol.Default == nil {
				m.add(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", newTable.SQLName(), quote(newCol.Name)), false)
			} else {
				m.add(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
					newTable.SQLName(), quote(newCol.Name), defaultExpr(newCol.Default)), false)
			}
		}
	}

	// Index diff by name.
	oldIdx := map[string]*Index{}
	for _, i := range oldTable.Indexes {
		oldIdx[i.Name] = i
	}
	newIdx := map[string]*Index{}
	for _, i := range newTable.Indexes {
		newIdx[i.Name] = i
	}
	for _, name := range sortedKeys(newIdx) {
		if _, ok := oldIdx[name]; !ok {
			m.add(createIndex(newTable, newIdx[name]), false)
		}
	}
	for _, name := range sortedKeys(oldIdx) {
		if _, ok := newIdx[name]; !ok {
			m.add(fmt.Sprintf("DROP INDEX %s", quote(name)), true)
		}
	}
}

func createTable(t *Table) string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, c.DDL())
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", t.SQLName(), strings.Join(defs, ", "))
}

func addForeignKey(t *Table, c *Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		t.SQLName(), quote(fkConstraintName(t.Name, c.Name)), quote(c.Name),
		quote(c.References.Table), quote(c.References.Column))
}

func createIndex(t *Table, idx *Index) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quote(c)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, quote(idx.Name), t.SQLName(), strings.Join(cols, ", "))
}

// narrowing reports whether changing a column from old to new can lose data.
func narrowing(oldType, newType sqltype.Type) bool {
	switch o := oldType.(type) {
	case sqltype.Int:
		if n, ok := newType.(sqltype.Int); ok {
			return n.Bits < o.Bits
		}
	case sqltype.Float:
		if n, ok := newType.(sqltype.Float); ok {
			return n.Bits < o.Bits
		}
	case sqltype.String:
		if n, ok := newType.(sqltype.String); ok {
			if n.MaxLength == nil {
				return false
			}
			return o.MaxLength == nil || *n.MaxLength < *o.MaxLength
		}
	case sqltype.Numeric:
		if n, ok := newType.(sqltype.Numeric); ok {
			if n.Precision == nil {
				return false
			}
			return o.Precision == nil || *n.Precision < *o.Precision
		}
	}
	// A change across type families is conservatively destructive.
	return true
}

func defaultExpr(d *Default) string {
	switch d.Kind {
	case DefaultUuidGenerate:
		return "gen_random_uuid()"
	default:
		return d.Expr
	}
}

func referencesEqual(a, b *Reference) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func defaultsEqual(a, b *Default) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func tableMap(d *Database) map[string]*Table {
	m := make(map[string]*Table, len(d.Tables))
	for _, t := range d.Tables {
		m[t.QualifiedName()] = t
	}
	return m
}

func tablesInScope(oldSpec, newSpec *Database, scope MigrationScope) map[string]*Table {
	all := tableMap(oldSpec)
	if scope == ScopeAllSchemas {
		return all
	}
	declared := map[string]bool{}
	for _, t := range newSpec.Tables {
		declared[t.Schema()] = true
	}
	scoped := map[string]*Table{}
	for name, t := range all {
		if declared[t.Schema()] {
			scoped[name] = t
		}
	}
	return scoped
}

func renamedInto(renames map[string]string, newName string) bool {
	for _, target := range renames {
		if target == newName {
			return true
		}
	}
	return false
}

func renameSource(renames map[string]string, oldTables map[string]*Table, newName string) *Table {
	for oldName, target := range renames {
		if target == newName {
			return oldTables[oldName]
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

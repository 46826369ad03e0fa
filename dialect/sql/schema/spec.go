// Package schema models the physical database layout an application compiles
// to, and derives ordered migration programs between two layouts.
//
// A Database is an arena of tables keyed by stable indices. The compiled
// model references tables and columns by TableID and ColumnID, so cyclic
// entity graphs never translate into cyclic ownership here.
package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/exo/dialect/sql/sqltype"
)

// TableID is the arena index of a table inside a Database.
type TableID int

// ColumnID addresses a column by its table's arena index and the column's
// position within the table.
type ColumnID struct {
	Table TableID `msgpack:"table"`
	Index int     `msgpack:"index"`
}

// Database is the physical layout: an arena of tables plus the named enum
// types they use. It is immutable after construction.
type Database struct {
	Tables []*Table    `msgpack:"tables"`
	Enums  []*EnumSpec `msgpack:"enums"`
}

// EnumSpec is a named Postgres enum type and its variants.
type EnumSpec struct {
	Name   string   `msgpack:"name"`
	Values []string `msgpack:"values"`
}

// Table is a physical table: name, columns, and secondary indexes.
type Table struct {
	// SchemaName is the Postgres schema; empty means "public".
	SchemaName string    `msgpack:"schema_name"`
	Name       string    `msgpack:"name"`
	Columns    []*Column `msgpack:"columns"`
	Indexes    []*Index  `msgpack:"indexes"`
}

// Column is a physical column.
type Column struct {
	// TableName is the owning table's name, carried for rendering
	// "table"."column" references without a back pointer.
	TableName string       `msgpack:"table_name"`
	Name      string       `msgpack:"name"`
	Type      sqltype.Type `msgpack:"-"`
	Nullable  bool         `msgpack:"nullable"`
	IsPK      bool         `msgpack:"is_pk"`
	Unique    bool         `msgpack:"unique"`
	Default   *Default     `msgpack:"default"`
	// References names the column this one is a foreign key to, if any.
	References *Reference `msgpack:"references"`
}

// DefaultKind discriminates how a column default is produced.
type DefaultKind int

// Default kinds.
const (
	// DefaultAutoIncrement uses a sequence-backed serial column.
	DefaultAutoIncrement DefaultKind = iota
	// DefaultUuidGenerate uses gen_random_uuid().
	DefaultUuidGenerate
	// DefaultFunction is a raw SQL expression, e.g. now().
	DefaultFunction
	// DefaultValue is a literal rendered into the DDL.
	DefaultValue
)

// Default describes a column's default value.
type Default struct {
	Kind DefaultKind `msgpack:"kind"`
	// Expr is the SQL expression or literal for the Function/Value kinds.
	Expr string `msgpack:"expr"`
}

// Reference is a foreign key edge to another table's column.
type Reference struct {
	Table  string `msgpack:"table"`
	Column string `msgpack:"column"`
}

// Index is a secondary index over one or more columns.
type Index struct {
	Name    string   `msgpack:"name"`
	Columns []string `msgpack:"columns"`
	Unique  bool     `msgpack:"unique"`
}

// Table returns the table at the given arena index.
func (d *Database) Table(id TableID) *Table {
	return d.Tables[id]
}

// Column returns the column addressed by the given id.
func (d *Database) Column(id ColumnID) *Column {
	return d.Tables[id.Table].Columns[id.Index]
}

// TableByName returns the arena index of the table with the given name.
func (d *Database) TableByName(name string) (TableID, bool) {
	for i, t := range d.Tables {
		if t.Name == name {
			return TableID(i), true
		}
	}
	return 0, false
}

// ColumnByName returns the id of the named column of the given table.
func (d *Database) ColumnByName(table TableID, name string) (ColumnID, bool) {
	for i, c := range d.Tables[table].Columns {
		if c.Name == name {
			return ColumnID{Table: table, Index: i}, true
		}
	}
	return ColumnID{}, false
}

// PKColumnID returns the id of the table's primary key column.
func (d *Database) PKColumnID(table TableID) (ColumnID, bool) {
	for i, c := range d.Tables[table].Columns {
		if c.IsPK {
			return ColumnID{Table: table, Index: i}, true
		}
	}
	return ColumnID{}, false
}

// QualifiedName returns the schema-qualified table name used as the diff key.
func (t *Table) QualifiedName() string {
	if t.SchemaName == "" || t.SchemaName == "public" {
		return t.Name
	}
	return t.SchemaName + "." + t.Name
}

// Schema returns the Postgres schema name, defaulting to public.
func (t *Table) Schema() string {
	if t.SchemaName == "" {
		return "public"
	}
	return t.SchemaName
}

// Column returns the named column of the table.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PK returns the table's primary key column.
func (t *Table) PK() *Column {
	for _, c := range t.Columns {
		if c.IsPK {
			return c
		}
	}
	return nil
}

// SQLName renders the quoted table reference.
func (t *Table) SQLName() string {
	if t.SchemaName != "" && t.SchemaName != "public" {
		return quote(t.SchemaName) + "." + quote(t.Name)
	}
	return quote(t.Name)
}

// SQLName renders the quoted "table"."column" reference.
func (c *Column) SQLName() string {
	return quote(c.TableName) + "." + quote(c.Name)
}

// DDL renders the column's definition fragment for CREATE TABLE and
// ADD COLUMN statements.
func (c *Column) DDL() string {
	var sb strings.Builder
	sb.WriteString(quote(c.Name))
	sb.WriteByte(' ')
	if c.Default != nil && c.Default.Kind == DefaultAutoIncrement {
		switch t := c.Type.(type) {
		case sqltype.Int:
			switch t.Bits {
			case sqltype.Bits16:
				sb.WriteString("SMALLSERIAL")
			case sqltype.Bits64:
				sb.WriteString("BIGSERIAL")
			default:
				sb.WriteString("SERIAL")
			}
		default:
			sb.WriteString(c.Type.TypeString())
		}
	} else {
		sb.WriteString(c.Type.TypeString())
	}
	if !c.Nullable && !c.IsPK {
		sb.WriteString(" NOT NULL")
	}
	if c.IsPK {
		sb.WriteString(" PRIMARY KEY")
	}
	if c.Default != nil {
		switch c.Default.Kind {
		case DefaultUuidGenerate:
			sb.WriteString(" DEFAULT gen_random_uuid()")
		case DefaultFunction:
			sb.WriteString(" DEFAULT " + c.Default.Expr)
		case DefaultValue:
			sb.WriteString(" DEFAULT " + c.Default.Expr)
		}
	}
	return sb.String()
}

// Equal reports whether two columns are structurally identical.
func (c *Column) Equal(other *Column) bool {
	if c.Name != other.Name || c.Nullable != other.Nullable || c.IsPK != other.IsPK || c.Unique != other.Unique {
		return false
	}
	if !c.Type.Equal(other.Type) {
		return false
	}
	if (c.Default == nil) != (other.Default == nil) {
		return false
	}
	if c.Default != nil && *c.Default != *other.Default {
		return false
	}
	if (c.References == nil) != (other.References == nil) {
		return false
	}
	if c.References != nil && *c.References != *other.References {
		return false
	}
	return true
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func fkConstraintName(table, column string) string {
	return fmt.Sprintf("%s_%s_fk", table, column)
}

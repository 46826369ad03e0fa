package sql

import (
	"github.com/syssam/exo/dialect/sql/schema"
)

// Insert is a concrete INSERT statement. Rows are aligned to Columns; a
// position a row has no value for must carry DefaultVal.
type Insert struct {
	Table     *schema.Table
	Columns   []*schema.Column
	Rows      [][]Column
	Returning []Column

	// OnConflict turns the insert into an upsert on the conflict
	// columns, updating the listed columns from EXCLUDED.
	OnConflict *OnConflict
}

// OnConflict describes the ON CONFLICT clause of an upsert.
type OnConflict struct {
	Columns []*schema.Column
	Update  []*schema.Column
}

// Build renders the insert.
func (i *Insert) Build(b *Builder) {
	b.WriteString("INSERT INTO ")
	b.WriteString(tableSQLName(i.Table))
	b.WriteString(" (")
	for n, c := range i.Columns {
		if n > 0 {
			b.WriteString(", ")
		}
		b.Quote(c.Name)
	}
	b.WriteString(") VALUES ")
	for r, row := range i.Rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for n, v := range row {
			if n > 0 {
				b.WriteString(", ")
			}
			v.Build(b)
		}
		b.WriteByte(')')
	}
	if i.OnConflict != nil {
		b.WriteString(" ON CONFLICT (")
		for n, c := range i.OnConflict.Columns {
			if n > 0 {
				b.WriteString(", ")
			}
			b.Quote(c.Name)
		}
		b.WriteString(") DO UPDATE SET ")
		for n, c := range i.OnConflict.Update {
			if n > 0 {
				b.WriteString(", ")
			}
			b.Quote(c.Name)
			b.WriteString(" = EXCLUDED.")
			b.Quote(c.Name)
		}
	}
	buildReturning(b, i.Returning)
}

// Assignment is one SET entry of an update.
type Assignment struct {
	Col   *schema.Column
	Value Column
}

// Update is a concrete UPDATE statement.
type Update struct {
	Table     *schema.Table
	Predicate *Predicate
	Columns   []Assignment
	Returning []Column
}

// Build renders the update.
func (u *Update) Build(b *Builder) {
	b.WriteString("UPDATE ")
	b.WriteString(tableSQLName(u.Table))
	b.WriteString(" SET ")
	for n, a := range u.Columns {
		if n > 0 {
			b.WriteString(", ")
		}
		b.Quote(a.Col.Name)
		b.WriteString(" = ")
		a.Value.Build(b)
	}
	if u.Predicate != nil && !u.Predicate.IsTrue() {
		b.WriteString(" WHERE ")
		u.Predicate.Build(b)
	}
	buildReturning(b, u.Returning)
}

// Delete is a concrete DELETE statement.
type Delete struct {
	Table     *schema.Table
	Predicate *Predicate
	Returning []Column
}

// Build renders the delete.
func (d *Delete) Build(b *Builder) {
	b.WriteString("DELETE FROM ")
	b.WriteString(tableSQLName(d.Table))
	if d.Predicate != nil && !d.Predicate.IsTrue() {
		b.WriteString(" WHERE ")
		d.Predicate.Build(b)
	}
	buildReturning(b, d.Returning)
}

func buildReturning(b *Builder, cols []Column) {
	for n, c := range cols {
		if n == 0 {
			b.WriteString(" RETURNING ")
		} else {
			b.WriteString(", ")
		}
		c.Build(b)
	}
}

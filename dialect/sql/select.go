package sql

import (
	"strconv"

	"github.com/syssam/exo/dialect/sql/schema"
)

// SQLOperation is a renderable SQL statement.
type SQLOperation interface {
	Build(b *Builder)
}

// TableExpr is a FROM clause item: a plain table or a join tree.
type TableExpr interface {
	Build(b *Builder)
}

// TableRef references a physical table.
type TableRef struct {
	Table *schema.Table
}

// Build renders the table reference.
func (t TableRef) Build(b *Builder) {
	b.WriteString(tableSQLName(t.Table))
}

// Join is a LEFT JOIN of two table expressions on a predicate.
type Join struct {
	Left      TableExpr
	Right     TableExpr
	Predicate *Predicate
}

// Build renders the join.
func (j Join) Build(b *Builder) {
	j.Left.Build(b)
	b.WriteString(" LEFT JOIN ")
	j.Right.Build(b)
	b.WriteString(" ON ")
	j.Predicate.Build(b)
}

// OrderByElem is one ORDER BY entry.
type OrderByElem struct {
	Column Column
	Desc   bool
}

// Select is a concrete SELECT statement.
type Select struct {
	From      TableExpr
	Columns   []Column
	Predicate *Predicate
	GroupBy   []*schema.Column
	OrderBy   []OrderByElem
	Offset    *int64
	Limit     *int64

	// TopLevel marks the outermost select of an operation: its JSON columns
	// render with a ::text suffix so the driver returns a single text value.
	TopLevel bool
}

// Build renders the select.
func (s *Select) Build(b *Builder) {
	b.WriteString("SELECT ")
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		c.Build(b)
		if s.TopLevel {
			switch c.(type) {
			case JsonAgg, JsonObject:
				b.WriteString("::text")
			}
		}
	}
	b.WriteString(" FROM ")
	s.From.Build(b)
	if s.Predicate != nil && !s.Predicate.IsTrue() {
		b.WriteString(" WHERE ")
		s.Predicate.Build(b)
	}
	for i, c := range s.GroupBy {
		if i == 0 {
			b.WriteString(" GROUP BY ")
		} else {
			b.WriteString(", ")
		}
		Physical{Col: c}.Build(b)
	}
	for i, o := range s.OrderBy {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		o.Column.Build(b)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if s.Limit != nil {
		b.WriteString(" LIMIT " + strconv.FormatInt(*s.Limit, 10))
	}
	if s.Offset != nil {
		b.WriteString(" OFFSET " + strconv.FormatInt(*s.Offset, 10))
	}
}

// WithQuery is one named query of a CTE.
type WithQuery struct {
	Name string
	Op   SQLOperation
}

// Cte renders WITH "name" AS (op), ... select. Single-statement mutations
// use it to pair a RETURNING operation with its trailing selection.
type Cte struct {
	Queries []WithQuery
	Select  *Select
}

// Build renders the CTE.
func (c Cte) Build(b *Builder) {
	b.WriteString("WITH ")
	for i, q := range c.Queries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Quote(q.Name)
		b.WriteString(" AS (")
		q.Op.Build(b)
		b.WriteByte(')')
	}
	b.WriteByte(' ')
	c.Select.Build(b)
}

func tableSQLName(t *schema.Table) string {
	var b Builder
	if t.SchemaName != "" && t.SchemaName != "public" {
		b.Quote(t.SchemaName)
		b.WriteByte('.')
	}
	b.Quote(t.Name)
	return b.String()
}

// Package sql provides the concrete SQL layer: column expressions,
// predicates, select/insert/update/delete operations, and the transaction
// script engine that executes an ordered program of steps inside one
// database transaction.
//
// Everything here is Postgres syntax. Operations are built per request from
// the abstract layer in sqlgraph and dropped after execution.
package sql

import (
	"strconv"
	"strings"
)

// Builder accumulates a SQL string and its positional parameters. Parameters
// render as $1, $2, ... in the order they are pushed.
type Builder struct {
	sb   strings.Builder
	args []any
}

// WriteString appends a raw SQL fragment.
func (b *Builder) WriteString(s string) {
	b.sb.WriteString(s)
}

// WriteByte appends one byte.
func (b *Builder) WriteByte(c byte) {
	b.sb.WriteByte(c)
}

// Quote appends a quoted identifier.
func (b *Builder) Quote(ident string) {
	b.sb.WriteByte('"')
	b.sb.WriteString(strings.ReplaceAll(ident, `"`, `""`))
	b.sb.WriteByte('"')
}

// Arg appends a placeholder for the given value.
func (b *Builder) Arg(v any) {
	b.args = append(b.args, v)
	b.sb.WriteByte('$')
	b.sb.WriteString(strconv.Itoa(len(b.args)))
}

// String returns the accumulated SQL.
func (b *Builder) String() string {
	return b.sb.String()
}

// Args returns the accumulated parameters.
func (b *Builder) Args() []any {
	return b.args
}

// Build renders an operation into its SQL string and parameters.
func Build(op SQLOperation) (string, []any) {
	var b Builder
	op.Build(&b)
	return b.String(), b.Args()
}

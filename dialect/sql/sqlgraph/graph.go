// Package sqlgraph holds the abstract SQL layer: operations over the entity
// graph that have not yet committed to a join plan.
//
// Leaves are column paths (sequences of foreign-key links) and parameters.
// The transformers lower abstract operations into concrete dialect/sql
// operations and transaction scripts, choosing between joins and subselect
// predicates as they go.
package sqlgraph

import (
	"reflect"

	"github.com/syssam/exo/dialect/sql/schema"
)

// ColumnPathLink is one step of a column path: a column on the current
// table, and, for join edges, the linked column on the next table. The self
// column always belongs to the table on the left of the edge, the linked
// column to the table on the right, and the pair is a declared foreign key.
type ColumnPathLink struct {
	SelfColumn   schema.ColumnID
	LinkedColumn *schema.ColumnID
}

// IsJoin reports whether the link traverses a relation.
func (l ColumnPathLink) IsJoin() bool { return l.LinkedColumn != nil }

// PathKind discriminates column path variants.
type PathKind int

// Path kinds.
const (
	// PathPhysical navigates links to a leaf column.
	PathPhysical PathKind = iota
	// PathParam is a literal parameter.
	PathParam
	// PathNull is the SQL NULL literal.
	PathNull
)

// ColumnPath is a predicate operand: a physical column reached through zero
// or more joins, a parameter, or null.
type ColumnPath struct {
	Kind  PathKind
	Links []ColumnPathLink
	Value any
}

// PhysicalPath returns a column path over the given links.
func PhysicalPath(links ...ColumnPathLink) ColumnPath {
	return ColumnPath{Kind: PathPhysical, Links: links}
}

// ParamPath returns a literal parameter path.
func ParamPath(v any) ColumnPath {
	return ColumnPath{Kind: PathParam, Value: v}
}

// NullPath returns the null path.
func NullPath() ColumnPath {
	return ColumnPath{Kind: PathNull}
}

// Leaf returns the last link of a physical path.
func (p ColumnPath) Leaf() ColumnPathLink {
	return p.Links[len(p.Links)-1]
}

// Equal reports structural equality of two paths.
func (p ColumnPath) Equal(other ColumnPath) bool {
	if p.Kind != other.Kind {
		return false
	}
	switch p.Kind {
	case PathPhysical:
		if len(p.Links) != len(other.Links) {
			return false
		}
		for i := range p.Links {
			if p.Links[i].SelfColumn != other.Links[i].SelfColumn {
				return false
			}
			a, b := p.Links[i].LinkedColumn, other.Links[i].LinkedColumn
			if (a == nil) != (b == nil) || (a != nil && *a != *b) {
				return false
			}
		}
		return true
	case PathParam:
		return reflect.DeepEqual(p.Value, other.Value)
	default:
		return true
	}
}

// ParamEq returns whether both paths are parameters and, if so, whether they
// are equal. Only parameter pairs can decide a predicate without reaching
// the database.
func (p ColumnPath) ParamEq(other ColumnPath) (equal, bothParams bool) {
	if p.Kind != PathParam || other.Kind != PathParam {
		return false, false
	}
	return reflect.DeepEqual(p.Value, other.Value), true
}

// RelationLink is a parent-to-child join edge used by nested selections and
// nested mutations: the column on the near table and the linked column on
// the far table.
type RelationLink struct {
	SelfColumn   schema.ColumnID
	LinkedColumn schema.ColumnID
}

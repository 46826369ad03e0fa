// Package schema holds the compiled model: the intermediate representation
// the compiler produces and the only artifact the request-time engine loads.
//
// The IR is built once, serialized to disk, and loaded immutably; requests
// share it by reference and never mutate it. Entities live in an arena and
// reference each other by index, so mutually referencing types never form
// ownership cycles.
package schema

import (
	"github.com/syssam/exo/dialect/sql"
	dbschema "github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
)

// Representation says how an entity is stored.
type Representation int

// Representations.
const (
	// Managed entities are backed by their own table.
	Managed Representation = iota
	// JsonRepr entities live inside a JSONB column of their parent and
	// cannot appear as filter predicate operands.
	JsonRepr
)

// Entity is a compiled domain type.
type Entity struct {
	Name           string         `msgpack:"name"`
	Fields         []*Field       `msgpack:"fields"`
	Representation Representation `msgpack:"representation"`
	Access         AccessControl  `msgpack:"access"`
	TableID        dbschema.TableID `msgpack:"table_id"`
}

// Field returns the named field.
func (e *Entity) Field(name string) *Field {
	for _, f := range e.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// PKField returns the primary key field.
func (e *Entity) PKField() *Field {
	for _, f := range e.Fields {
		if f.Relation.Kind == RelationScalar && f.Relation.IsPK {
			return f
		}
	}
	return nil
}

// FieldType describes the type of a field: an optional/list modifier stack
// over a primitive scalar or a peer entity referenced by arena index.
type FieldType struct {
	Optional bool `msgpack:"optional"`
	List     bool `msgpack:"list"`
	// Primitive is the scalar name (Int, String, ...) for scalar fields.
	Primitive string `msgpack:"primitive"`
	// Entity is the arena index of the referenced entity, or -1.
	Entity int `msgpack:"entity"`
}

// IsEntity reports whether the type references an entity.
func (t FieldType) IsEntity() bool { return t.Entity >= 0 }

// RelationKind discriminates how a field maps to the physical layout.
type RelationKind int

// Relation kinds.
const (
	// RelationScalar maps to a column on the entity's own table.
	RelationScalar RelationKind = iota
	// RelationManyToOne holds a foreign key to another entity.
	RelationManyToOne
	// RelationOneToMany is the inverse side: the peer holds the key.
	RelationOneToMany
	// RelationEmbedded nests a Json-represented entity.
	RelationEmbedded
)

// Relation ties a field to columns of the physical layout.
type Relation struct {
	Kind RelationKind `msgpack:"kind"`

	// ColumnID is the backing column for Scalar and ManyToOne fields.
	ColumnID dbschema.ColumnID `msgpack:"column_id"`

	// IsPK marks the primary key scalar.
	IsPK bool `msgpack:"is_pk"`

	// ForeignPK is the referenced primary key for ManyToOne fields.
	ForeignPK *dbschema.ColumnID `msgpack:"foreign_pk"`

	// InverseColumnID is the child's foreign key column for OneToMany.
	InverseColumnID *dbschema.ColumnID `msgpack:"inverse_column_id"`
}

// Field is one field of an entity.
type Field struct {
	Name     string            `msgpack:"name"`
	Type     FieldType         `msgpack:"type"`
	Relation Relation          `msgpack:"relation"`
	Default  *dbschema.Default `msgpack:"default"`
	// Access is the per-field access expression slot; nil inherits the
	// entity's rules.
	Access *AccessExpr `msgpack:"access"`
	// Unique marks fields backed by a unique constraint.
	Unique bool `msgpack:"unique"`
	// Range bounds numeric arguments targeting this field.
	Range *Range `msgpack:"range"`
}

// Range is the inclusive bound enforced by @range(min:, max:).
type Range struct {
	Min float64 `msgpack:"min"`
	Max float64 `msgpack:"max"`
}

// AccessControl carries the four operation access expressions of an entity.
// A nil expression denies the operation.
type AccessControl struct {
	Read   *AccessExpr `msgpack:"read"`
	Create *AccessExpr `msgpack:"create"`
	Update *AccessExpr `msgpack:"update"`
	Delete *AccessExpr `msgpack:"delete"`
}

// AccessExprKind discriminates access expression nodes.
type AccessExprKind int

// Access expression kinds.
const (
	// AccessContext selects a value from the request context,
	// e.g. AuthContext.role.
	AccessContext AccessExprKind = iota
	// AccessColumn references an entity column through a path.
	AccessColumn
	// AccessLiteral is a constant.
	AccessLiteral
	// AccessRelational compares two sub-expressions.
	AccessRelational
	// AccessLogical combines predicates with and/or/not.
	AccessLogical
	// AccessBoolean is the constant true/false predicate.
	AccessBoolean
)

// AccessExpr is a node of an access expression tree. Relational and logical
// nodes reuse the predicate operator space of dialect/sql.
type AccessExpr struct {
	Kind AccessExprKind `msgpack:"kind"`

	// Context is the selection path for AccessContext nodes.
	Context []string `msgpack:"context"`

	// Column is the referenced column path for AccessColumn nodes.
	Column []sqlgraph.ColumnPathLink `msgpack:"column"`

	// Literal is the constant for AccessLiteral nodes.
	Literal any `msgpack:"literal"`

	// Value is the constant for AccessBoolean nodes.
	Value bool `msgpack:"value"`

	// Op is the operator of AccessRelational and AccessLogical nodes.
	Op sql.PredicateOp `msgpack:"op"`

	Left  *AccessExpr `msgpack:"left"`
	Right *AccessExpr `msgpack:"right"`
}

// ContextSourceKind says where a context field's value comes from.
type ContextSourceKind int

// Context sources.
const (
	SourceJWT ContextSourceKind = iota
	SourceHeader
	SourceCookie
	SourceClientIP
	SourceEnv
)

// ContextSource binds a context field to its request-time origin.
type ContextSource struct {
	Kind ContextSourceKind `msgpack:"kind"`
	// Key is the claim, header, cookie, or variable name.
	Key string `msgpack:"key"`
}

// ContextField is one field of a context type.
type ContextField struct {
	Name   string        `msgpack:"name"`
	Type   string        `msgpack:"type"`
	Source ContextSource `msgpack:"source"`
}

// Context is a request-context type: values resolved per request from the
// transport and substituted into access expressions.
type Context struct {
	Name   string          `msgpack:"name"`
	Fields []*ContextField `msgpack:"fields"`
}

// QueryKind discriminates generated queries.
type QueryKind int

// Query kinds.
const (
	// PkQuery fetches one entity by primary key, e.g. concert(id:).
	PkQuery QueryKind = iota
	// CollectionQuery fetches a filtered, ordered, paginated list,
	// e.g. concerts(where:, orderBy:, limit:, offset:).
	CollectionQuery
	// AggregateQuery computes aggregates, e.g. concertsAgg(where:).
	AggregateQuery
	// UniqueQuery fetches one entity by a unique field set.
	UniqueQuery
)

// Query is one generated query operation.
type Query struct {
	Name   string    `msgpack:"name"`
	Kind   QueryKind `msgpack:"kind"`
	Entity int       `msgpack:"entity"`
	// UniqueFields names the fields a UniqueQuery keys on.
	UniqueFields []string `msgpack:"unique_fields"`
}

// MutationKind discriminates generated mutations.
type MutationKind int

// Mutation kinds.
const (
	// CreateMutation inserts entities, e.g. createConcert(data:).
	CreateMutation MutationKind = iota
	// UpdateMutation updates by pk with nested ops,
	// e.g. updateConcert(id:, data:).
	UpdateMutation
	// DeleteMutation deletes by pk, e.g. deleteConcert(id:).
	DeleteMutation
	// UpdateManyMutation updates a filtered set, e.g. updateConcerts.
	UpdateManyMutation
	// DeleteManyMutation deletes a filtered set, e.g. deleteConcerts.
	DeleteManyMutation
	// CreateManyMutation inserts a list, e.g. createConcerts.
	CreateManyMutation
)

// Mutation is one generated mutation operation.
type Mutation struct {
	Name   string       `msgpack:"name"`
	Kind   MutationKind `msgpack:"kind"`
	Entity int          `msgpack:"entity"`
}

// System is the complete compiled model.
type System struct {
	Database  *dbschema.Database `msgpack:"database"`
	Entities  []*Entity          `msgpack:"entities"`
	Contexts  []*Context         `msgpack:"contexts"`
	Queries   []*Query           `msgpack:"queries"`
	Mutations []*Mutation        `msgpack:"mutations"`
}

// Entity returns the entity at the given arena index.
func (s *System) Entity(idx int) *Entity {
	return s.Entities[idx]
}

// EntityByName returns the arena index of the named entity.
func (s *System) EntityByName(name string) (int, bool) {
	for i, e := range s.Entities {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// QueryByName returns the named query.
func (s *System) QueryByName(name string) (*Query, bool) {
	for _, q := range s.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return nil, false
}

// MutationByName returns the named mutation.
func (s *System) MutationByName(name string) (*Mutation, bool) {
	for _, m := range s.Mutations {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// ContextByName returns the named context type.
func (s *System) ContextByName(name string) (*Context, bool) {
	for _, c := range s.Contexts {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

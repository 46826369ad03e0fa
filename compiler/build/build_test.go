package build_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo/compiler/load"
	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/sqltype"
	"github.com/syssam/exo/schema"
)

const concertModel = `
context AuthContext {
  @jwt("role") role: String
  @jwt("sub") userId: Int
}

@access(query: true, mutation: AuthContext.role == "ADMIN")
type Venue {
  @pk id: Int = autoIncrement()
  name: String
  concerts: Set<Concert>
}

@access(query: self.public, mutation: AuthContext.role == "ADMIN")
type Concert {
  @pk id: Int = autoIncrement()
  title: String
  @unique slug: String
  public: Boolean = true
  @range(min: 0, max: 10000) price: Int
  venue: Venue
}
`

func buildModel(t *testing.T) *schema.System {
	t.Helper()
	sys, err := load.Source("index.exo", concertModel)
	require.NoError(t, err)
	return sys
}

func TestBuildTables(t *testing.T) {
	sys := buildModel(t)
	// Entities are arena-ordered by name: Concert, Venue.
	require.Len(t, sys.Entities, 2)
	assert.Equal(t, "Concert", sys.Entities[0].Name)
	assert.Equal(t, "Venue", sys.Entities[1].Name)

	concerts := sys.Database.Table(sys.Entities[0].TableID)
	assert.Equal(t, "concerts", concerts.Name)
	venues := sys.Database.Table(sys.Entities[1].TableID)
	assert.Equal(t, "venues", venues.Name)

	venueID := concerts.Column("venue_id")
	require.NotNil(t, venueID)
	require.NotNil(t, venueID.References)
	assert.Equal(t, "venues", venueID.References.Table)
	assert.Equal(t, "id", venueID.References.Column)

	pk := concerts.PK()
	require.NotNil(t, pk)
	assert.Equal(t, "id", pk.Name)
	require.NotNil(t, pk.Default)
	assert.True(t, pk.Type.Equal(sqltype.Int{Bits: sqltype.Bits32}))

	slug := concerts.Column("slug")
	require.NotNil(t, slug)
	assert.True(t, slug.Unique)

	public := concerts.Column("public")
	require.NotNil(t, public.Default)
	assert.Equal(t, "true", public.Default.Expr)
}

func TestBuildRelations(t *testing.T) {
	sys := buildModel(t)
	concert := sys.Entities[0]
	venue := sys.Entities[1]

	venueField := concert.Field("venue")
	require.NotNil(t, venueField)
	assert.Equal(t, schema.RelationManyToOne, venueField.Relation.Kind)
	require.NotNil(t, venueField.Relation.ForeignPK)

	concertsField := venue.Field("concerts")
	require.NotNil(t, concertsField)
	assert.Equal(t, schema.RelationOneToMany, concertsField.Relation.Kind)
	require.NotNil(t, concertsField.Relation.InverseColumnID)
	assert.Equal(t, venueField.Relation.ColumnID, *concertsField.Relation.InverseColumnID)
}

func TestBuildOperations(t *testing.T) {
	sys := buildModel(t)

	names := map[string]schema.QueryKind{}
	for _, q := range sys.Queries {
		names[q.Name] = q.Kind
	}
	assert.Equal(t, schema.PkQuery, names["concert"])
	assert.Equal(t, schema.CollectionQuery, names["concerts"])
	assert.Equal(t, schema.AggregateQuery, names["concertsAgg"])
	assert.Equal(t, schema.UniqueQuery, names["concertBySlug"])

	mutations := map[string]schema.MutationKind{}
	for _, m := range sys.Mutations {
		mutations[m.Name] = m.Kind
	}
	assert.Equal(t, schema.CreateMutation, mutations["createConcert"])
	assert.Equal(t, schema.UpdateMutation, mutations["updateConcert"])
	assert.Equal(t, schema.DeleteMutation, mutations["deleteConcert"])
	assert.Equal(t, schema.UpdateManyMutation, mutations["updateConcerts"])
}

func TestBuildAccessExpressions(t *testing.T) {
	sys := buildModel(t)
	concert := sys.Entities[0]

	// query: self.public lowers to public == true over the column path.
	read := concert.Access.Read
	require.NotNil(t, read)
	assert.Equal(t, schema.AccessRelational, read.Kind)
	assert.Equal(t, sql.OpEq, read.Op)
	assert.Equal(t, schema.AccessColumn, read.Left.Kind)
	require.Len(t, read.Left.Column, 1)
	assert.Equal(t, concert.Field("public").Relation.ColumnID, read.Left.Column[0].SelfColumn)

	// mutation: AuthContext.role == "ADMIN" fills all three mutation slots.
	for _, expr := range []*schema.AccessExpr{concert.Access.Create, concert.Access.Update, concert.Access.Delete} {
		require.NotNil(t, expr)
		assert.Equal(t, schema.AccessRelational, expr.Kind)
		assert.Equal(t, []string{"AuthContext", "role"}, expr.Left.Context)
	}
}

func TestBuildRange(t *testing.T) {
	sys := buildModel(t)
	price := sys.Entities[0].Field("price")
	require.NotNil(t, price.Range)
	assert.Equal(t, float64(0), price.Range.Min)
	assert.Equal(t, float64(10000), price.Range.Max)
}

func TestBuildContexts(t *testing.T) {
	sys := buildModel(t)
	require.Len(t, sys.Contexts, 1)
	ctx := sys.Contexts[0]
	assert.Equal(t, "AuthContext", ctx.Name)
	require.Len(t, ctx.Fields, 2)
	assert.Equal(t, schema.SourceJWT, ctx.Fields[0].Source.Kind)
	assert.Equal(t, "role", ctx.Fields[0].Source.Key)
	assert.Equal(t, "sub", ctx.Fields[1].Source.Key)
}

func TestBuildHofAccess(t *testing.T) {
	sys, err := load.Source("index.exo", `
@access(query: self.concerts.some(c => c.public == true), mutation: false)
type Venue {
  @pk id: Int = autoIncrement()
  concerts: Set<Concert>
}

@access(query: true, mutation: false)
type Concert {
  @pk id: Int = autoIncrement()
  public: Boolean
  venue: Venue
}
`)
	require.NoError(t, err)
	venueIdx, ok := sys.EntityByName("Venue")
	require.True(t, ok)
	read := sys.Entities[venueIdx].Access.Read
	require.NotNil(t, read)
	// The set traversal contributes a join link ahead of the column.
	assert.Equal(t, schema.AccessRelational, read.Kind)
	require.Len(t, read.Left.Column, 2)
	assert.NotNil(t, read.Left.Column[0].LinkedColumn)
}

func TestBuildMissingInverse(t *testing.T) {
	_, err := load.Source("index.exo", `
type Venue {
  @pk id: Int = autoIncrement()
  concerts: Set<Concert>
}

type Concert {
  @pk id: Int = autoIncrement()
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Venue reference")
}

package graphql_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/load"
	exosql "github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/graphql"
	"github.com/syssam/exo/schema"
)

const concertModel = `
context AuthContext {
  @jwt("role") role: String
}

@access(query: AuthContext.role == "ADMIN", mutation: AuthContext.role == "ADMIN")
type Venue {
  @pk id: Int = autoIncrement()
  name: String
  concerts: Set<Concert>
}

@access(query: AuthContext.role == "ADMIN", mutation: AuthContext.role == "ADMIN")
type Concert {
  @pk id: Int = autoIncrement()
  title: String
  venue: Venue
  artists: Set<Artist>
}

@access(query: AuthContext.role == "ADMIN", mutation: AuthContext.role == "ADMIN")
type Artist {
  @pk id: Int = autoIncrement()
  name: String
  concert: Concert
}
`

var (
	adminCtx = map[string]any{"AuthContext": map[string]any{"role": "ADMIN"}}
	userCtx  = map[string]any{"AuthContext": map[string]any{"role": "USER"}}
)

func newResolver(t *testing.T) (*graphql.Resolver, sqlmock.Sqlmock, *schema.System) {
	t.Helper()
	sys, err := load.Source("index.exo", concertModel)
	require.NoError(t, err)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return graphql.NewResolver(sys, exosql.OpenDB("postgres", db)), mock, sys
}

func TestPkQueryLowering(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	query := `SELECT coalesce(json_agg(json_build_object('id', "concerts"."id", 'title', "concerts"."title", 'venue', (SELECT json_build_object('id', "venues"."id", 'name', "venues"."name") FROM "venues" WHERE "concerts"."venue_id" = "venues"."id"))), '[]'::json)::text FROM "concerts" WHERE "concerts"."id" = $1`
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(query) + "$").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).
			AddRow(`[{"id":1,"title":"t1","venue":{"id":2,"name":"v1"}}]`))
	mock.ExpectCommit()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concert(id: 1) { id title venue { id name } } }`,
	}, adminCtx)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"id":1,"title":"t1","venue":{"id":2,"name":"v1"}}`, string(resp.Data["concert"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

// A definitive deny must not touch the database: the mock has no
// expectations, so any issued statement fails the test.
func TestAccessDenyShortCircuits(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concert(id: 1) { id } }`,
	}, userCtx)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "not authorized", resp.Errors[0].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGrantAddsNoPredicate(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	// With the rule reduced to TRUE the generated select carries only the
	// pk predicate.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "concerts" WHERE "concerts"."id" = $1`) + "$").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[]`))
	mock.ExpectCommit()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concert(id: 1) { id } }`,
	}, adminCtx)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "null", string(resp.Data["concert"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubselectFilter(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	query := `SELECT coalesce(json_agg(json_build_object('id', "concerts"."id")), '[]'::json)::text FROM "concerts" WHERE "concerts"."venue_id" IN (SELECT "venues"."id" FROM "venues" WHERE "venues"."name" = $1 GROUP BY "venues"."id")`
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(query) + "$").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[{"id":1}]`))
	mock.ExpectCommit()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concerts(where: {venue: {name: {eq: "v1"}}}) { id } }`,
	}, adminCtx)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `[{"id":1}]`, string(resp.Data["concerts"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithNestedOperations(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "concerts" SET "title" = $1 WHERE "concerts"."id" = $2 RETURNING "concerts"."id"`) + "$").
		WithArgs("t2", int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "artists" ("name", "concert_id") VALUES ($1, $2)`) + "$").
		WithArgs("a", int64(4)).
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "artists" WHERE ("artists"."id" = $1 AND "artists"."concert_id" = $2)`) + "$").
		WithArgs(int64(9), int64(4)).
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT coalesce(json_agg(json_build_object('id', "concerts"."id", 'title', "concerts"."title")), '[]'::json)::text FROM "concerts" WHERE "concerts"."id" = ANY($1)`) + "$").
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[{"id":4,"title":"t2"}]`))
	mock.ExpectCommit()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `mutation {
			updateConcert(id: 4, data: {title: "t2", artists: {create: [{name: "a"}], delete: [{id: 9}]}}) { id title }
		}`,
	}, adminCtx)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"id":4,"title":"t2"}`, string(resp.Data["updateConcert"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUsesCte(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	query := `WITH "concerts" AS (INSERT INTO "concerts" ("title", "venue_id") VALUES ($1, $2) RETURNING *) SELECT coalesce(json_agg(json_build_object('id', "concerts"."id")), '[]'::json)::text FROM "concerts"`
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(query) + "$").
		WithArgs("c1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[{"id":10}]`))
	mock.ExpectCommit()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `mutation { createConcert(data: {title: "c1", venue: 2}) { id } }`,
	}, adminCtx)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"id":10}`, string(resp.Data["createConcert"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVariablesResolve(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "concerts" WHERE "concerts"\."id" = \$1$`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[{"id":7}]`))
	mock.ExpectCommit()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query:     `query($id: Int!) { concert(id: $id) { id } }`,
		Variables: map[string]any{"id": int64(7)},
	}, adminCtx)
	require.Empty(t, resp.Errors)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVariableNotFound(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query($id: Int!) { concert(id: $id) { id } }`,
	}, adminCtx)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, `variable "id" not found`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseErrorRollsBack(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+`).WillReturnError(assertableError("boom"))
	mock.ExpectRollback()

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concert(id: 1) { id } }`,
	}, adminCtx)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "database error")
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertableError string

func (e assertableError) Error() string { return string(e) }

func TestStrayArgument(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concert(id: 1, zfirst: 2, afirst: 3) { id } }`,
	}, adminCtx)
	require.Len(t, resp.Errors, 1)
	// Stray names report in lexicographic order.
	assert.Contains(t, resp.Errors[0].Message, "afirst, zfirst")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequiredArgumentMissing(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `query { concert { id } }`,
	}, adminCtx)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, `required argument "id"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationFieldCannotBeSupplied(t *testing.T) {
	resolver, mock, _ := newResolver(t)

	resp := resolver.Execute(context.Background(), &graphql.Payload{
		Query: `mutation { updateConcert(id: 4, data: {artists: {create: [{name: "a", concert: 9}]}}) { id } }`,
	}, adminCtx)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "derived from the parent")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanCacheSkipsReparse(t *testing.T) {
	sys, err := load.Source("index.exo", concertModel)
	require.NoError(t, err)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	resolver := graphql.NewResolver(sys, exosql.OpenDB("postgres", db),
		graphql.WithPlanCache(exo.NewLRUPlanCache(16)))

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .+`).WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[]`))
		mock.ExpectCommit()
	}
	payload := &graphql.Payload{
		Query:     `query { concerts { id } }`,
		QueryHash: "h1",
	}
	for i := 0; i < 2; i++ {
		resp := resolver.Execute(context.Background(), payload, adminCtx)
		require.Empty(t, resp.Errors)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteBatch(t *testing.T) {
	resolver, mock, _ := newResolver(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .+`).WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[]`))
		mock.ExpectCommit()
	}

	responses := resolver.ExecuteBatch(context.Background(), []*graphql.Payload{
		{Query: `query { concerts { id } }`},
		{Query: `query { venues { id } }`},
	}, adminCtx)
	require.Len(t, responses, 2)
	for _, resp := range responses {
		assert.Empty(t, resp.Errors)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseEncoding(t *testing.T) {
	resp := &graphql.Response{Data: map[string]json.RawMessage{"x": json.RawMessage(`1`)}}
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"x":1}}`, string(out))
}

package graphql_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/syssam/exo/compiler/load"
	exosql "github.com/syssam/exo/dialect/sql"
	dbschema "github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/graphql"
	"github.com/syssam/exo/internal/testutils"
)

// TestIntegration runs the full pipeline against a real Postgres: migrate an
// empty database to the model, mutate, and query back. It needs Docker and
// is gated behind EXO_INTEGRATION.
func TestIntegration(t *testing.T) {
	if os.Getenv("EXO_INTEGRATION") == "" {
		t.Skip("set EXO_INTEGRATION to run container-backed tests")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("exo"),
		postgres.WithUsername("exo"),
		postgres.WithPassword("exo"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { ctr.Terminate(ctx) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sys, err := load.Source("index.exo", concertModel)
	require.NoError(t, err)

	// Migrate from empty to the model.
	migration, err := dbschema.Diff(&dbschema.Database{}, sys.Database, dbschema.DiffOptions{})
	require.NoError(t, err)
	for _, stmt := range migration.Statements {
		_, err := db.ExecContext(ctx, stmt.Statement)
		require.NoError(t, err, stmt.Statement)
	}

	// Introspection of the migrated database self-diffs to empty.
	inspected, err := dbschema.InspectDatabase(ctx, db)
	require.NoError(t, err)
	m2, err := dbschema.Diff(inspected, sys.Database, dbschema.DiffOptions{})
	require.NoError(t, err)
	assert.Empty(t, m2.Statements, "live schema should match the model")

	resolver := graphql.NewResolver(sys, exosql.OpenDB("postgres", db))

	run := func(query string) *graphql.Response {
		t.Helper()
		resp := resolver.Execute(ctx, &graphql.Payload{Query: query}, adminCtx)
		require.Empty(t, resp.Errors)
		return resp
	}

	run(`mutation { createVenue(data: {name: "v1"}) { id } }`)
	run(`mutation { createConcert(data: {title: "c1", venue: 1, artists: [{name: "a1"}, {name: "a2"}]}) { id } }`)
	run(`mutation { updateConcert(id: 1, data: {title: "c1x", artists: {create: [{name: "a3"}], delete: [{id: 1}]}}) { id title } }`)

	resp := run(`query { concert(id: 1) { id title venue { name } artists { name } } }`)
	equal, err := testutils.JSONEqual(
		[]byte(`{"id": 1, "title": "c1x", "venue": {"name": "v1"}, "artists": [{"name": "a2"}, {"name": "a3"}]}`),
		resp.Data["concert"],
		"artists",
	)
	require.NoError(t, err)
	assert.True(t, equal, "unexpected response: %s", resp.Data["concert"])

	// Deny still short-circuits against a live database.
	denied := resolver.Execute(ctx, &graphql.Payload{Query: `query { concert(id: 1) { id } }`}, userCtx)
	require.Len(t, denied.Errors, 1)
}

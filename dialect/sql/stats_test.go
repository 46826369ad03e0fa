package sql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsDriverCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow int
	drv := NewStatsDriver(OpenDB("postgres", db),
		WithSlowThreshold(0), // everything counts as slow
		WithSlowQueryHook(func(context.Context, string, []any, time.Duration) { slow++ }),
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectCommit()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	var rows Rows
	require.NoError(t, tx.Query(context.Background(), "SELECT 1", []any{}, &rows))
	rows.Close()
	require.NoError(t, tx.Commit())

	stats := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), stats.TotalQueries)
	assert.Equal(t, 1, slow)
	require.NoError(t, mock.ExpectationsWereMet())
}

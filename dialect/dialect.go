// Package dialect provides the database driver abstraction used by the
// request-time engine and the migrator.
//
// The core targets PostgreSQL; the dialect constant exists so that drivers
// wrapped for debugging or pooling can still report what they speak.
package dialect

import (
	"context"
	"fmt"
	"log"
)

// Postgres is the only dialect the engine emits SQL for.
const Postgres = "postgres"

// ExecQuerier wraps the two database operations used by the engine.
// It is implemented by both Driver and Tx.
type ExecQuerier interface {
	// Exec executes a query that does not return records.
	Exec(ctx context.Context, query string, args, v any) error

	// Query executes a query that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface a database connection must provide.
type Driver interface {
	ExecQuerier

	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)

	// Close closes the underlying connection.
	Close() error

	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transaction handle. It extends ExecQuerier with commit and
// rollback. A transaction script runs entirely within one Tx.
type Tx interface {
	ExecQuerier

	// Commit commits the transaction.
	Commit() error

	// Rollback discards the transaction.
	Rollback() error
}

// DebugDriver is a driver that echoes every statement through a log
// function before delegating to the wrapped driver.
type DebugDriver struct {
	Driver                    // underlying driver
	log    func(...any)       // log function
}

// Debug wraps a driver with the standard library logger.
func Debug(d Driver) Driver {
	return &DebugDriver{d, log.Println}
}

// DebugWithLog wraps a driver with a custom log function.
func DebugWithLog(d Driver, logger func(...any)) Driver {
	return &DebugDriver{d, logger}
}

// Exec logs its params and calls the underlying driver.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log(fmt.Sprintf("driver.Exec: query=%v args=%v", query, args))
	return d.Driver.Exec(ctx, query, args, v)
}

// Query logs its params and calls the underlying driver.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log(fmt.Sprintf("driver.Query: query=%v args=%v", query, args))
	return d.Driver.Query(ctx, query, args, v)
}

// Tx starts a transaction on the underlying driver and wraps it with the
// same log function.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugTx{tx, d.log}, nil
}

// DebugTx is a transaction that logs all transaction operations.
type DebugTx struct {
	Tx
	log func(...any)
}

// Exec logs its params and calls the underlying transaction.
func (d *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	d.log(fmt.Sprintf("tx.Exec: query=%v args=%v", query, args))
	return d.Tx.Exec(ctx, query, args, v)
}

// Query logs its params and calls the underlying transaction.
func (d *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	d.log(fmt.Sprintf("tx.Query: query=%v args=%v", query, args))
	return d.Tx.Query(ctx, query, args, v)
}

// Commit logs and commits the underlying transaction.
func (d *DebugTx) Commit() error {
	d.log("tx.Commit")
	return d.Tx.Commit()
}

// Rollback logs and rolls back the underlying transaction.
func (d *DebugTx) Rollback() error {
	d.log("tx.Rollback")
	return d.Tx.Rollback()
}

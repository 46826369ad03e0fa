package sql

import (
	"context"
	"database/sql"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect"
	"github.com/syssam/exo/dialect/sql/schema"
)

// StepID identifies a step within a transaction script. Template and filter
// steps reference the step whose results they consume by id; an id always
// points to a step added earlier in the same script.
type StepID int

// StepResult is the buffered result set of one executed step.
type StepResult struct {
	Columns []string
	Rows    [][]any
}

// RowCount returns the number of buffered rows.
func (r *StepResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// TransactionContext gives later steps access to the results of earlier
// ones, keyed by step id.
type TransactionContext struct {
	results map[StepID]*StepResult
}

// NewTransactionContext returns an empty context. The executor populates
// one per script run; tests populate them by hand.
func NewTransactionContext() *TransactionContext {
	return &TransactionContext{results: map[StepID]*StepResult{}}
}

// SetResult records a step's result.
func (tc *TransactionContext) SetResult(id StepID, r *StepResult) {
	tc.results[id] = r
}

// RowCount returns the number of rows the given step produced.
func (tc *TransactionContext) RowCount(id StepID) int {
	return tc.results[id].RowCount()
}

// Resolve returns one value of a prior step's result set.
func (tc *TransactionContext) Resolve(id StepID, row, col int) any {
	return tc.results[id].Rows[row][col]
}

// TransactionStep is one step of a transaction script.
type TransactionStep interface {
	execute(ctx context.Context, tx dialect.Tx, tc *TransactionContext) (*StepResult, error)
}

// ConcreteStep runs a fully rendered SQL operation.
type ConcreteStep struct {
	Op SQLOperation
}

func (s *ConcreteStep) execute(ctx context.Context, tx dialect.Tx, _ *TransactionContext) (*StepResult, error) {
	return runOperation(ctx, tx, s.Op)
}

// TemplateStep runs an operation whose TemplateParam placeholders resolve
// against the result rows of a previous step: the operation executes once
// per row of that step, and the results are concatenated.
type TemplateStep struct {
	Op         SQLOperation
	PrevStepID StepID
}

// Resolve returns the concrete operation for one row of the previous
// step's result set.
func (s *TemplateStep) Resolve(tc *TransactionContext, row int) SQLOperation {
	return resolveOp(s.Op, tc, row)
}

func (s *TemplateStep) execute(ctx context.Context, tx dialect.Tx, tc *TransactionContext) (*StepResult, error) {
	out := &StepResult{}
	for row := 0; row < tc.RowCount(s.PrevStepID); row++ {
		res, err := runOperation(ctx, tx, resolveOp(s.Op, tc, row))
		if err != nil {
			return nil, err
		}
		out.Columns = res.Columns
		out.Rows = append(out.Rows, res.Rows...)
	}
	return out, nil
}

// FilterStep materializes the subset of a previous step's rows whose primary
// keys still match a predicate. Nested inserts hang off a filter step so
// they only apply to the parent rows the nested predicate selected.
type FilterStep struct {
	Table      *schema.Table
	PrevStepID StepID
	Predicate  *Predicate
}

func (s *FilterStep) execute(ctx context.Context, tx dialect.Tx, tc *TransactionContext) (*StepResult, error) {
	pk := s.Table.PK()
	if pk == nil {
		return nil, exo.Internalf("filter step on table %q without a primary key", s.Table.Name)
	}
	prev := tc.results[s.PrevStepID]
	ids := make([]any, prev.RowCount())
	for i, row := range prev.Rows {
		ids[i] = row[0]
	}
	sel := &Select{
		From:    TableRef{Table: s.Table},
		Columns: []Column{Physical{Col: pk}},
		Predicate: And(
			s.Predicate,
			Eq(Physical{Col: pk}, ArrayParam{Values: ids, Wrapper: WrapperAny}),
		),
	}
	return runOperation(ctx, tx, sel)
}

// DynamicStep defers building its operation until execution time, when the
// results of earlier steps are known. The update tail select uses it to
// filter on the primary keys the root step returned.
type DynamicStep struct {
	Fn func(tc *TransactionContext) SQLOperation
}

func (s *DynamicStep) execute(ctx context.Context, tx dialect.Tx, tc *TransactionContext) (*StepResult, error) {
	return runOperation(ctx, tx, s.Fn(tc))
}

// TransactionScript is an ordered program of steps executed inside a single
// database transaction. Steps run strictly sequentially: a step is not
// submitted until its predecessor completed, because template columns
// resolve from prior results.
type TransactionScript struct {
	steps []TransactionStep
}

// AddStep appends a step and returns its id.
func (s *TransactionScript) AddStep(step TransactionStep) StepID {
	s.steps = append(s.steps, step)
	return StepID(len(s.steps) - 1)
}

// Len returns the number of steps.
func (s *TransactionScript) Len() int { return len(s.steps) }

// Steps returns the ordered steps.
func (s *TransactionScript) Steps() []TransactionStep { return s.steps }

// Execute runs the script inside one transaction and returns the result of
// the last step. Any error rolls the transaction back; context cancellation
// between steps does the same.
func (s *TransactionScript) Execute(ctx context.Context, drv dialect.Driver) (*StepResult, error) {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return nil, &exo.DatabaseError{Message: "cannot begin transaction", Err: err}
	}
	tc := &TransactionContext{results: make(map[StepID]*StepResult, len(s.steps))}
	var last *StepResult
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return nil, &exo.DatabaseError{Message: "operation canceled", Err: err}
		}
		res, err := step.execute(ctx, tx, tc)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		tc.results[StepID(i)] = res
		last = res
	}
	if err := tx.Commit(); err != nil {
		return nil, &exo.DatabaseError{Message: "commit failed", Err: err}
	}
	return last, nil
}

func runOperation(ctx context.Context, tx dialect.Tx, op SQLOperation) (*StepResult, error) {
	query, args := Build(op)
	var rows Rows
	if err := tx.Query(ctx, query, args, &rows); err != nil {
		return nil, &exo.DatabaseError{Message: sanitizeDBError(err), Err: err}
	}
	defer rows.Close()
	return scanRows(rows.Rows)
}

func scanRows(rows *sql.Rows) (*StepResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		// Statements without a result set (e.g. a template update with no
		// RETURNING clause) report no columns.
		return &StepResult{}, nil
	}
	out := &StepResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &exo.DatabaseError{Message: sanitizeDBError(err), Err: err}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &exo.DatabaseError{Message: sanitizeDBError(err), Err: err}
	}
	return out, nil
}

// resolveOp deep-copies an operation, replacing every TemplateParam with the
// value it addresses in the transaction context for the given row.
func resolveOp(op SQLOperation, tc *TransactionContext, row int) SQLOperation {
	switch op := op.(type) {
	case *Insert:
		out := *op
		out.Rows = make([][]Column, len(op.Rows))
		for i, r := range op.Rows {
			out.Rows[i] = resolveColumns(r, tc, row)
		}
		out.Returning = resolveColumns(op.Returning, tc, row)
		return &out
	case *Update:
		out := *op
		out.Columns = make([]Assignment, len(op.Columns))
		for i, a := range op.Columns {
			out.Columns[i] = Assignment{Col: a.Col, Value: resolveColumn(a.Value, tc, row)}
		}
		out.Predicate = resolvePredicate(op.Predicate, tc, row)
		out.Returning = resolveColumns(op.Returning, tc, row)
		return &out
	case *Delete:
		out := *op
		out.Predicate = resolvePredicate(op.Predicate, tc, row)
		out.Returning = resolveColumns(op.Returning, tc, row)
		return &out
	default:
		return op
	}
}

func resolveColumns(cols []Column, tc *TransactionContext, row int) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = resolveColumn(c, tc, row)
	}
	return out
}

func resolveColumn(c Column, tc *TransactionContext, row int) Column {
	if p, ok := c.(TemplateParam); ok {
		return Param{Value: tc.Resolve(p.StepID, row, p.ColIndex)}
	}
	return c
}

func resolvePredicate(p *Predicate, tc *TransactionContext, row int) *Predicate {
	if p == nil {
		return nil
	}
	out := *p
	if p.L != nil {
		out.L = resolveColumn(p.L, tc, row)
	}
	if p.R != nil {
		out.R = resolveColumn(p.R, tc, row)
	}
	out.Left = resolvePredicate(p.Left, tc, row)
	out.Right = resolvePredicate(p.Right, tc, row)
	return &out
}

package plan

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// StatementRejectedError reports a statement that failed validation. For a
// transactional plan it also means every earlier statement in the same plan
// was rolled back.
type StatementRejectedError struct {
	Index     int
	SQL       string
	Rejection *Rejection
}

func (e *StatementRejectedError) Error() string {
	return fmt.Sprintf("statement %d rejected: %s", e.Index, e.Rejection.Reason)
}

func (e *StatementRejectedError) Unwrap() error { return e.Rejection }

// runner is the subset of *sql.DB and *sql.Tx the executor needs.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor runs validated plans against the gateway database. The pool is
// owned by the composition root and injected here, so the executor carries no
// global state and is safe for concurrent plans.
type Executor struct {
	db *sql.DB
}

// NewExecutor creates an executor over an open database pool.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute validates and runs a plan in statement order.
//
// The transactional strategy is used if and only if the plan requested bulk
// execution and carries more than one statement; everything else runs
// sequentially without a safety net, so a later failure leaves earlier
// statements' effects committed.
func (e *Executor) Execute(ctx context.Context, p Plan) (PlanResult, error) {
	if len(p.Statements) == 0 {
		return PlanResult{}, ErrEmptyPlan
	}
	if p.Bulk && len(p.Statements) > 1 {
		return e.executeTransactional(ctx, p)
	}
	return e.executeSequential(ctx, p)
}

func (e *Executor) executeSequential(ctx context.Context, p Plan) (PlanResult, error) {
	results := make([]StatementResult, 0, len(p.Statements))
	for i, st := range p.Statements {
		if err := Validate(st.SQL, st.Operation); err != nil {
			return PlanResult{}, rejected(i, st, err)
		}
		result, err := runStatement(ctx, e.db, st)
		if err != nil {
			return PlanResult{}, fmt.Errorf("statement %d: %w", i, err)
		}
		results = append(results, result)
	}
	return PlanResult{Results: results, TotalQueries: len(results), Bulk: false}, nil
}

func (e *Executor) executeTransactional(ctx context.Context, p Plan) (PlanResult, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return PlanResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback on every non-commit exit path so the pinned connection always
	// returns to the pool. After Commit this is a no-op.
	defer func() { _ = tx.Rollback() }()

	results := make([]StatementResult, 0, len(p.Statements))
	for i, st := range p.Statements {
		if err := Validate(st.SQL, st.Operation); err != nil {
			return PlanResult{}, rejected(i, st, err)
		}
		result, err := runStatement(ctx, tx, st)
		if err != nil {
			return PlanResult{}, fmt.Errorf("statement %d: %w", i, err)
		}
		results = append(results, result)
	}
	if err := tx.Commit(); err != nil {
		return PlanResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return PlanResult{Results: results, TotalQueries: len(results), Bulk: true}, nil
}

func runStatement(ctx context.Context, r runner, st Statement) (StatementResult, error) {
	if strings.ToUpper(strings.TrimSpace(st.Operation)) == OpSelect {
		rows, err := r.QueryContext(ctx, st.SQL, st.Params...)
		if err != nil {
			return StatementResult{}, fmt.Errorf("query: %w", err)
		}
		defer func() { _ = rows.Close() }()
		return FormatRows(rows, st.Operation)
	}

	result, err := r.ExecContext(ctx, st.SQL, st.Params...)
	if err != nil {
		return StatementResult{}, fmt.Errorf("exec: %w", err)
	}
	return FormatExec(result, st.Operation), nil
}

func rejected(index int, st Statement, err error) *StatementRejectedError {
	rej, ok := err.(*Rejection)
	if !ok {
		rej = &Rejection{Rule: RuleForbiddenStatement, Reason: err.Error()}
	}
	return &StatementRejectedError{Index: index, SQL: st.SQL, Rejection: rej}
}

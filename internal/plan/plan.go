// Package plan holds the query-plan data model plus the validation and
// execution pipeline that runs model-generated SQL against the gateway
// database.
package plan

import (
	"encoding/json"
	"errors"
	"strings"
)

// Recognized operation kinds. The operation is a claim made by the plan
// generator, never derived from the SQL text.
const (
	OpSelect = "SELECT"
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Operations lists the recognized operation kinds in a stable order.
func Operations() []string {
	return []string{OpSelect, OpInsert, OpUpdate, OpDelete}
}

// KnownOperation reports whether op names a recognized operation kind.
func KnownOperation(op string) bool {
	switch strings.ToUpper(strings.TrimSpace(op)) {
	case OpSelect, OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// Statement is one candidate unit of work produced by the plan generator:
// SQL text with positional placeholders, the values bound to them, and the
// declared operation kind.
type Statement struct {
	SQL       string `json:"sql"`
	Params    []any  `json:"params"`
	Operation string `json:"operation"`
}

// Plan is an ordered sequence of statements plus the bulk-execution flag
// requested by the generator. Ordering is significant: later statements may
// depend on earlier ones' effects.
type Plan struct {
	Statements  []Statement `json:"queries"`
	Bulk        bool        `json:"isBulk"`
	Explanation string      `json:"explanation,omitempty"`
}

// ErrEmptyPlan is returned when a plan carries no statements.
var ErrEmptyPlan = errors.New("plan contains no statements")

// StatementResult is the normalized per-statement outcome. Its JSON shape
// depends on the operation kind; see MarshalJSON.
type StatementResult struct {
	Operation    string
	Rows         []map[string]any
	Count        int
	InsertID     *int64
	AffectedRows int64
	Raw          any
}

// MarshalJSON renders the per-operation result shape. Unrecognized operations
// fall through to the raw shape rather than failing.
func (r StatementResult) MarshalJSON() ([]byte, error) {
	switch strings.ToUpper(strings.TrimSpace(r.Operation)) {
	case OpSelect:
		return json.Marshal(struct {
			Data      []map[string]any `json:"data"`
			Count     int              `json:"count"`
			Operation string           `json:"operation"`
		}{Data: r.Rows, Count: r.Count, Operation: r.Operation})
	case OpInsert:
		return json.Marshal(struct {
			InsertID     *int64 `json:"insertId"`
			AffectedRows int64  `json:"affectedRows"`
			Operation    string `json:"operation"`
		}{InsertID: r.InsertID, AffectedRows: r.AffectedRows, Operation: r.Operation})
	case OpUpdate, OpDelete:
		return json.Marshal(struct {
			AffectedRows int64  `json:"affectedRows"`
			Operation    string `json:"operation"`
		}{AffectedRows: r.AffectedRows, Operation: r.Operation})
	default:
		return json.Marshal(struct {
			Raw       any    `json:"raw"`
			Operation string `json:"operation"`
		}{Raw: r.Raw, Operation: r.Operation})
	}
}

// PlanResult is the aggregate outcome of a whole plan. Bulk reflects the
// execution strategy that actually ran, not the one requested: a plan with a
// single statement never runs transactionally.
type PlanResult struct {
	Results      []StatementResult
	TotalQueries int
	Bulk         bool
}

// MarshalJSON collapses a single-statement plan to that statement's result;
// multi-statement plans render the ordered result list with metadata.
func (r PlanResult) MarshalJSON() ([]byte, error) {
	if r.TotalQueries == 1 && len(r.Results) == 1 {
		return json.Marshal(r.Results[0])
	}
	return json.Marshal(struct {
		Results      []StatementResult `json:"results"`
		TotalQueries int               `json:"totalQueries"`
		IsBulk       bool              `json:"isBulk"`
	}{Results: r.Results, TotalQueries: r.TotalQueries, IsBulk: r.Bulk})
}

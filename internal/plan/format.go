package plan

import (
	"database/sql"
	"fmt"
	"strings"
)

// FormatRows drains a result set into the normalized SELECT shape: an ordered
// sequence of column/value mappings plus the row count.
func FormatRows(rows *sql.Rows, operation string) (StatementResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return StatementResult{}, fmt.Errorf("read columns: %w", err)
	}

	mapped := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return StatementResult{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = convertValue(values[i])
		}
		mapped = append(mapped, row)
	}
	if err := rows.Err(); err != nil {
		return StatementResult{}, fmt.Errorf("iterate rows: %w", err)
	}

	return StatementResult{Operation: operation, Rows: mapped, Count: len(mapped)}, nil
}

// FormatExec maps a driver exec result into the per-operation shape, keyed off
// the uppercased operation. Unrecognized operations keep the raw counters
// instead of failing: the gateway prefers returning something over rejecting
// an execution that already succeeded. The same applies to a driver that
// cannot report affected rows: rather than claim affectedRows 0 for a
// mutation that ran, the result falls through to the raw shape with the
// counters the driver did report.
func FormatExec(result sql.Result, operation string) StatementResult {
	affected, affectedErr := result.RowsAffected()

	switch strings.ToUpper(strings.TrimSpace(operation)) {
	case OpInsert:
		if affectedErr != nil {
			return rawExecResult(result, operation)
		}
		formatted := StatementResult{Operation: operation, AffectedRows: affected}
		// Not every engine reports last-insert ids (postgres does not);
		// insertId stays null in that case.
		if id, err := result.LastInsertId(); err == nil {
			formatted.InsertID = &id
		}
		return formatted
	case OpUpdate, OpDelete:
		if affectedErr != nil {
			return rawExecResult(result, operation)
		}
		return StatementResult{Operation: operation, AffectedRows: affected}
	default:
		return rawExecResult(result, operation)
	}
}

// rawExecResult keeps only the counters the driver actually reported; a
// counter the driver errored on is absent rather than zeroed.
func rawExecResult(result sql.Result, operation string) StatementResult {
	raw := map[string]any{}
	if affected, err := result.RowsAffected(); err == nil {
		raw["rowsAffected"] = affected
	}
	if id, err := result.LastInsertId(); err == nil {
		raw["lastInsertId"] = id
	}
	return StatementResult{Operation: operation, Raw: raw}
}

// convertValue normalizes driver values for JSON rendering; byte slices become
// strings so text columns do not serialize as base64.
func convertValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	default:
		return v
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sqlgate/sqlgate/internal/audit"
	"github.com/sqlgate/sqlgate/internal/auth"
	"github.com/sqlgate/sqlgate/internal/nl2sql"
	"github.com/sqlgate/sqlgate/internal/observability"
	"github.com/sqlgate/sqlgate/internal/plan"
)

type agentRequest struct {
	Message string `json:"message"`
}

type agentResponse struct {
	Schema      string         `json:"schema"`
	AICommand   nl2sql.Command `json:"aiCommand"`
	ToolResult  toolResult     `json:"toolResult"`
	Explanation string         `json:"explanation,omitempty"`
}

// toolResult is the execution half of an agent response. A rejected plan is a
// successful HTTP exchange: the refusal travels inside the body, not as a
// status code.
type toolResult struct {
	Success bool             `json:"success"`
	Data    *plan.PlanResult `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Query   string           `json:"query,omitempty"`
}

func handleAgent(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATOR_NOT_CONFIGURED", "natural-language translation is not configured", false, nil)
		return
	}
	if deps.Inspector == nil || deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GATEWAY_NOT_CONFIGURED", "database gateway is not configured", false, nil)
		return
	}

	var req agentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid agent request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}

	descriptor, err := deps.Inspector.Describe(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load database schema", true, map[string]any{"details": err.Error()})
		return
	}
	schemaText := descriptor.Text()

	translateStart := time.Now()
	command, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		Message:    req.Message,
		SchemaText: schemaText,
	})
	observability.ObserveTranslationLatency(time.Since(translateStart))
	if err != nil {
		var badPlan *nl2sql.BadPlanError
		var unknownTool *nl2sql.UnknownToolError
		switch {
		case errors.As(err, &badPlan):
			writeError(r.Context(), w, http.StatusBadRequest, "BAD_PLAN", badPlan.Error(), false, map[string]any{"raw": badPlan.Raw})
		case errors.As(err, &unknownTool):
			writeError(r.Context(), w, http.StatusBadRequest, "UNKNOWN_TOOL", unknownTool.Error(), false, map[string]any{"recognized": unknownTool.Recognized})
		default:
			writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate request", true, map[string]any{"details": err.Error()})
		}
		return
	}

	record := audit.Record{
		TraceID:     observability.TraceIDFromContext(r.Context()),
		Message:     req.Message,
		Explanation: command.Explanation,
		Statements:  command.Queries,
		Bulk:        command.IsBulk,
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		record.Subject = identity.Subject
	}

	result, err := deps.Executor.Execute(r.Context(), command.Plan())
	if err != nil {
		transactional := command.IsBulk && len(command.Queries) > 1

		var rejected *plan.StatementRejectedError
		if errors.As(err, &rejected) {
			observability.ObservePlan(observability.PlanRejected, operations(command))
			observability.ObserveValidationRejection(rejected.Rejection.Rule)
			if transactional {
				observability.IncrementRollbacks()
			}
			record.Status = observability.PlanRejected
			record.Error = rejected.Rejection.Reason
			deps.Audit.RecordAsync(record)

			writeJSON(w, http.StatusOK, agentResponse{
				Schema:    schemaText,
				AICommand: command,
				ToolResult: toolResult{
					Success: false,
					Error:   rejected.Rejection.Reason,
					Query:   rejected.SQL,
				},
				Explanation: command.Explanation,
			})
			return
		}

		observability.ObservePlan(observability.PlanFailed, operations(command))
		if transactional {
			observability.IncrementRollbacks()
		}
		record.Status = observability.PlanFailed
		record.Error = err.Error()
		deps.Audit.RecordAsync(record)

		writeError(r.Context(), w, http.StatusInternalServerError, "EXECUTION_FAILED", "plan execution failed", true, map[string]any{"details": err.Error()})
		return
	}

	observability.ObservePlan(observability.PlanExecuted, operations(command))
	record.Status = observability.PlanExecuted
	deps.Audit.RecordAsync(record)

	writeJSON(w, http.StatusOK, agentResponse{
		Schema:      schemaText,
		AICommand:   command,
		ToolResult:  toolResult{Success: true, Data: &result},
		Explanation: command.Explanation,
	})
}

func operations(command nl2sql.Command) []string {
	ops := make([]string, 0, len(command.Queries))
	for _, statement := range command.Queries {
		ops = append(ops, strings.ToUpper(strings.TrimSpace(statement.Operation)))
	}
	return ops
}

// Package nl2sql turns a natural-language request into a structured query
// plan by way of an LLM. The model is an untrusted external collaborator: its
// output is parsed strictly here and every statement it proposes still passes
// the plan validator before execution.
package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlgate/sqlgate/internal/plan"
)

// ToolExecuteSQL is the only tool the model may declare.
const ToolExecuteSQL = "execute_sql"

// RecognizedTools lists the tool names the gateway accepts.
func RecognizedTools() []string {
	return []string{ToolExecuteSQL}
}

// Request carries the user's message and the schema context rendered for the
// prompt.
type Request struct {
	Message    string
	SchemaText string
}

// Command is the model's reply envelope: a declared tool plus the proposed
// query plan.
type Command struct {
	Tool        string           `json:"tool"`
	Queries     []plan.Statement `json:"queries"`
	Explanation string           `json:"explanation"`
	IsBulk      bool             `json:"isBulk"`
}

// Plan converts the command into an executable plan.
func (c Command) Plan() plan.Plan {
	return plan.Plan{Statements: c.Queries, Bulk: c.IsBulk, Explanation: c.Explanation}
}

// Translator produces a command for a natural-language request.
type Translator interface {
	Translate(ctx context.Context, req Request) (Command, error)
}

// BadPlanError reports model output that does not parse as a command.
type BadPlanError struct {
	Detail string
	Raw    string
}

func (e *BadPlanError) Error() string {
	return fmt.Sprintf("model output is not a valid query plan: %s", e.Detail)
}

// UnknownToolError reports a declared tool the gateway does not recognize.
type UnknownToolError struct {
	Tool       string
	Recognized []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (recognized: %s)", e.Tool, strings.Join(e.Recognized, ", "))
}

// ParseCommand decodes a raw model reply into a command, tolerating markdown
// fences around the JSON body. It enforces the envelope contract but performs
// no safety checks; those belong to the plan validator.
func ParseCommand(raw string) (Command, error) {
	body := stripMarkdownFence(raw)
	if strings.TrimSpace(body) == "" {
		return Command{}, &BadPlanError{Detail: "empty model reply", Raw: raw}
	}

	var command Command
	if err := json.Unmarshal([]byte(body), &command); err != nil {
		return Command{}, &BadPlanError{Detail: err.Error(), Raw: raw}
	}

	if command.Tool != ToolExecuteSQL {
		return Command{}, &UnknownToolError{Tool: command.Tool, Recognized: RecognizedTools()}
	}
	if len(command.Queries) == 0 {
		return Command{}, &BadPlanError{Detail: "queries must not be empty", Raw: raw}
	}
	for i, statement := range command.Queries {
		if strings.TrimSpace(statement.SQL) == "" {
			return Command{}, &BadPlanError{Detail: fmt.Sprintf("query %d has empty sql", i), Raw: raw}
		}
		if !plan.KnownOperation(statement.Operation) {
			return Command{}, &BadPlanError{
				Detail: fmt.Sprintf("query %d declares operation %q (recognized: %s)",
					i, statement.Operation, strings.Join(plan.Operations(), ", ")),
				Raw: raw,
			}
		}
	}
	return command, nil
}

func stripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

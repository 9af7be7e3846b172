package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlgate/sqlgate/internal/config"
	"github.com/sqlgate/sqlgate/internal/nl2sql"
	"github.com/sqlgate/sqlgate/internal/plan"
)

type fakeTranslator struct {
	command nl2sql.Command
	err     error

	lastRequest nl2sql.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Command, error) {
	f.lastRequest = req
	if f.err != nil {
		return nl2sql.Command{}, f.err
	}
	return f.command, nil
}

func newAgentHandler(t *testing.T, translator nl2sql.Translator) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	cfg, err := config.Load("sqlgate-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := NewHandler(cfg, Dependencies{
		Inspector:  fixedInspector{},
		Translator: translator,
		Executor:   plan.NewExecutor(db),
	})
	return h, mock
}

func postAgent(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAgentExecutesSingleSelect(t *testing.T) {
	translator := &fakeTranslator{command: nl2sql.Command{
		Tool: nl2sql.ToolExecuteSQL,
		Queries: []plan.Statement{
			{SQL: "SELECT id, email FROM User", Operation: "SELECT"},
		},
		Explanation: "list all users",
	}}
	h, mock := newAgentHandler(t, translator)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email FROM User")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(int64(1), "a@x.com"))

	rr := postAgent(t, h, `{"message":"list the users"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Schema    string `json:"schema"`
		AICommand struct {
			Tool string `json:"tool"`
		} `json:"aiCommand"`
		ToolResult struct {
			Success bool `json:"success"`
			Data    struct {
				Operation string           `json:"operation"`
				Count     int              `json:"count"`
				Data      []map[string]any `json:"data"`
			} `json:"data"`
		} `json:"toolResult"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(body.Schema, "User (") {
		t.Fatalf("schema = %q", body.Schema)
	}
	if body.AICommand.Tool != nl2sql.ToolExecuteSQL {
		t.Fatalf("aiCommand.tool = %q", body.AICommand.Tool)
	}
	if !body.ToolResult.Success {
		t.Fatalf("toolResult = %s", rr.Body.String())
	}
	if body.ToolResult.Data.Operation != "SELECT" || body.ToolResult.Data.Count != 1 {
		t.Fatalf("data = %+v", body.ToolResult.Data)
	}
	if body.Explanation != "list all users" {
		t.Fatalf("explanation = %q", body.Explanation)
	}
	if translator.lastRequest.SchemaText == "" {
		t.Fatal("expected schema text in translator request")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestAgentReportsRejectedPlanInBody(t *testing.T) {
	translator := &fakeTranslator{command: nl2sql.Command{
		Tool: nl2sql.ToolExecuteSQL,
		Queries: []plan.Statement{
			{SQL: "DROP TABLE User", Operation: "DELETE"},
		},
	}}
	h, mock := newAgentHandler(t, translator)

	rr := postAgent(t, h, `{"message":"drop the user table"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for rejected plan", rr.Code)
	}

	var body struct {
		ToolResult struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
			Query   string `json:"query"`
		} `json:"toolResult"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ToolResult.Success {
		t.Fatal("expected success=false for rejected plan")
	}
	if body.ToolResult.Error == "" {
		t.Fatal("expected rejection reason in body")
	}
	if body.ToolResult.Query != "DROP TABLE User" {
		t.Fatalf("query = %q", body.ToolResult.Query)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}

func TestAgentRejectsBadModelOutput(t *testing.T) {
	translator := &fakeTranslator{err: &nl2sql.BadPlanError{Detail: "not json", Raw: "garbage"}}
	h, _ := newAgentHandler(t, translator)

	rr := postAgent(t, h, `{"message":"do something"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error_code"] != "BAD_PLAN" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestAgentRejectsUnknownTool(t *testing.T) {
	translator := &fakeTranslator{err: &nl2sql.UnknownToolError{Tool: "drop_everything", Recognized: nl2sql.RecognizedTools()}}
	h, _ := newAgentHandler(t, translator)

	rr := postAgent(t, h, `{"message":"do something"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error_code"] != "UNKNOWN_TOOL" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

// A transport failure against the model endpoint is neither the client's
// fault nor this service's: it maps to 502, with 400 reserved for faults in
// the model's output.
func TestAgentReturns502OnTranslatorTransportFailure(t *testing.T) {
	translator := &fakeTranslator{err: errors.New("post chat completion: connection refused")}
	h, _ := newAgentHandler(t, translator)

	rr := postAgent(t, h, `{"message":"list the users"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error_code"] != "TRANSLATE_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["retryable"] != true {
		t.Fatalf("retryable = %v", body["retryable"])
	}
}

func TestAgentReturns500OnDriverError(t *testing.T) {
	translator := &fakeTranslator{command: nl2sql.Command{
		Tool: nl2sql.ToolExecuteSQL,
		Queries: []plan.Statement{
			{SQL: "INSERT INTO User (email) VALUES (?)", Params: []any{"a@x.com"}, Operation: "INSERT"},
		},
	}}
	h, mock := newAgentHandler(t, translator)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO User (email) VALUES (?)")).
		WithArgs("a@x.com").
		WillReturnError(context.DeadlineExceeded)

	rr := postAgent(t, h, `{"message":"add a user"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error_code"] != "EXECUTION_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestAgentRequiresMessage(t *testing.T) {
	h, _ := newAgentHandler(t, &fakeTranslator{})

	rr := postAgent(t, h, `{"message":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAgentRejectsUnknownFields(t *testing.T) {
	h, _ := newAgentHandler(t, &fakeTranslator{})

	rr := postAgent(t, h, `{"message":"x","extra":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAgentWithoutTranslatorReturns501(t *testing.T) {
	cfg, err := config.Load("sqlgate-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Inspector: fixedInspector{}})

	rr := postAgent(t, h, `{"message":"hello"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rr.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	cfg, err := config.Load("sqlgate-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Inspector: fixedInspector{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var body struct {
		Schema string                      `json:"schema"`
		Tables map[string][]map[string]any `json:"tables"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(body.Schema, "User (id INTEGER") {
		t.Fatalf("schema = %q", body.Schema)
	}
	if len(body.Tables["User"]) != 2 {
		t.Fatalf("tables = %+v", body.Tables)
	}
}

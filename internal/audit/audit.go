// Package audit persists a JSON record of every query plan the gateway
// handled to an object store. Records are written off the request path;
// an unavailable store degrades the trail, never the API.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sqlgate/sqlgate/internal/observability"
	"github.com/sqlgate/sqlgate/internal/plan"
	"github.com/sqlgate/sqlgate/internal/storage"
)

const writeTimeout = 10 * time.Second

// Record captures one handled request end to end: what was asked, what the
// model proposed, and how execution went.
type Record struct {
	ID          string           `json:"id"`
	RecordedAt  time.Time        `json:"recordedAt"`
	TraceID     string           `json:"traceId,omitempty"`
	Subject     string           `json:"subject,omitempty"`
	Message     string           `json:"message"`
	Explanation string           `json:"explanation,omitempty"`
	Statements  []plan.Statement `json:"statements,omitempty"`
	Bulk        bool             `json:"isBulk"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
}

type Trail struct {
	store  storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewTrail(store storage.ObjectStore, logger *slog.Logger) *Trail {
	if store == nil {
		return nil
	}
	return &Trail{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Record uploads one audit record. A nil trail is a disabled trail.
func (t *Trail) Record(ctx context.Context, rec Record) error {
	if t == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = t.newID()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = t.now()
	}

	key, err := storage.BuildAuditRecordPath(rec.RecordedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("build audit key: %w", err)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	_, err = t.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload audit record %q: %w", key, err)
	}
	return nil
}

// RecordAsync detaches from the request lifecycle: the upload gets its own
// deadline and failures are logged and counted, not surfaced to the caller.
func (t *Trail) RecordAsync(rec Record) {
	if t == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := t.Record(ctx, rec); err != nil {
			observability.IncrementAuditWriteFailures()
			if t.logger != nil {
				t.logger.Warn("audit record write failed",
					slog.String("trace_id", rec.TraceID),
					slog.String("error", err.Error()),
				)
			}
		}
	}()
}

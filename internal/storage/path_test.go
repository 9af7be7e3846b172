package storage

import (
	"testing"
	"time"
)

func TestBuildAuditRecordPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildAuditRecordPath(ts, "rec-001")
	if err != nil {
		t.Fatalf("BuildAuditRecordPath() error = %v", err)
	}
	want := "plans/date=2026-02-19/rec-001.json"
	if key != want {
		t.Fatalf("BuildAuditRecordPath() = %q, want %q", key, want)
	}
}

func TestBuildAuditRecordPathRejectsInvalidComponent(t *testing.T) {
	_, err := BuildAuditRecordPath(time.Now(), "../oops")
	if err == nil {
		t.Fatal("expected invalid component error")
	}
}

package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAuditRecordPath places audit records under a per-day partition so
// object listings stay cheap: plans/date=2024-05-01/<record-id>.json.
func BuildAuditRecordPath(recordedAt time.Time, recordID string) (string, error) {
	if err := validatePathComponent(recordID, "record id"); err != nil {
		return "", err
	}
	ts := recordedAt.UTC()
	return path.Join(
		"plans",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		recordID+".json",
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

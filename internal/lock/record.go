package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	// LockFile is the repo-relative path of the active lock record.
	LockFile = ".dsg/sync.lock"
	// TombstoneFile marks a clean release, since Backend cannot delete.
	TombstoneFile = LockFile + ".released"

	DefaultTimeout = 10 * time.Minute
	StaleAfter     = 30 * time.Minute
)

// Record is the JSON lock record written to LockFile (spec §4.10).
type Record struct {
	UserID    string `json:"user_id"`
	Operation string `json:"operation"`
	Timestamp string `json:"timestamp"` // RFC3339 UTC
	PID       int    `json:"pid"`
	Hostname  string `json:"hostname"`
	LockID    string `json:"lock_id"`
}

func newRecord(userID, operation, lockID string) *Record {
	host, _ := os.Hostname()
	return &Record{
		UserID:    userID,
		Operation: operation,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		PID:       os.Getpid(),
		Hostname:  host,
		LockID:    lockID,
	}
}

func (r *Record) marshal() ([]byte, error) {
	return json.Marshal(r)
}

func parseRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("lock: invalid lock record: %w", err)
	}
	return &r, nil
}

func (r *Record) isStale(staleAfter time.Duration) bool {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return true // unparsable timestamp is treated as stale, not live
	}
	return time.Since(t) > staleAfter
}

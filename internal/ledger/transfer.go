package ledger

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidImportFormat rejects backup files that are not snapshots.
var ErrInvalidImportFormat = errors.New("invalid import format")

var requiredImportKeys = []string{"students", "hours", "marks"}

// ParseImport validates a backup file and returns the normalized snapshot it
// holds. The students, hours and marks keys must all be present.
func ParseImport(raw []byte, now time.Time) (Snapshot, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Snapshot{}, ErrInvalidImportFormat
	}
	for _, k := range requiredImportKeys {
		if _, ok := keys[k]; !ok {
			return Snapshot{}, ErrInvalidImportFormat
		}
	}
	snap, err := Decode(raw)
	if err != nil {
		return Snapshot{}, ErrInvalidImportFormat
	}
	snap.Normalize(now)
	return snap, nil
}

// Export renders a snapshot as an indented backup file.
func Export(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

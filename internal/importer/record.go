package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// DumpRecord is the diagnostic artifact written for a failed batch.
type DumpRecord struct {
	Errors  []string `json:"errors"`
	Queries []string `json:"queries"`
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// RecordPath returns where the record for name is written. An empty name is
// the whole-file replay record.
func RecordPath(dir, name string) string {
	if name == "" {
		return filepath.Join(dir, "dump.json")
	}
	return filepath.Join(dir, "dump-"+unsafeNameChars.ReplaceAllString(name, "_")+".json")
}

// WriteRecord persists rec under dir and returns the file path.
func WriteRecord(dir, name string, rec DumpRecord) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create dump directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode dump record: %w", err)
	}

	path := RecordPath(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create dump record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write dump record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to sync dump record: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close dump record: %w", err)
	}
	return path, nil
}

// ReadRecord loads a record written by WriteRecord.
func ReadRecord(path string) (DumpRecord, error) {
	var rec DumpRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("failed to read dump record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode dump record %s: %w", path, err)
	}
	return rec, nil
}

package storage

import (
	"strings"
	"time"
)

const RecordSuffix = ".record.json"

// Record is the sidecar describing one archived deploy run. Readers need it
// to undo the compression and encryption applied to the receipt.
type Record struct {
	RunID        string         `json:"run_id"`
	Destination  string         `json:"destination"`
	SourceDir    string         `json:"source_dir"`
	ReceiptKey   string         `json:"receipt_key"`
	ManifestKey  string         `json:"manifest_key,omitempty"`
	ManifestPath string         `json:"manifest_path,omitempty"`
	Compression  string         `json:"compression"`
	Encryption   bool           `json:"encryption"`
	CreatedAt    time.Time      `json:"created_at"`
	ReceiptBytes int64          `json:"receipt_bytes"`
	Files        int            `json:"files"`
	Skipped      map[string]int `json:"skipped,omitempty"`
	Error        string         `json:"error,omitempty"`
	ToolVersion  string         `json:"tool_version"`
}

// RecordKey returns the sidecar key for a run stem.
func RecordKey(stem string) string {
	return stem + RecordSuffix
}

func isRecord(key string) bool {
	return strings.HasSuffix(key, RecordSuffix)
}

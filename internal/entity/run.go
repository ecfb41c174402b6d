package entity

import (
	"time"

	"github.com/google/uuid"
)

// Result is the merged output of one run over an ordered set of documents.
// It is what RecordSinks receive.
type Result struct {
	RunID     uuid.UUID      `json:"run_id"`
	Strategy  string         `json:"strategy"`
	Documents int            `json:"documents"`
	Records   []Record       `json:"-"`
	Streams   FieldStreams   `json:"-"`
	Dropped   map[string]int `json:"dropped,omitempty"`
	Ambiguous int            `json:"ambiguous"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// ExtractRun represents a persisted run for data transfer between layers.
type ExtractRun struct {
	ID             uuid.UUID      `json:"id"`
	Strategy       string         `json:"strategy"`
	Source         string         `json:"source"`
	Status         string         `json:"status"`
	Documents      int            `json:"documents"`
	Records        int            `json:"records"`
	Dropped        int            `json:"dropped"`
	DroppedReasons map[string]int `json:"dropped_reasons,omitempty"`
	Ambiguous      int            `json:"ambiguous"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
}

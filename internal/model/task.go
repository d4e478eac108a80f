package model

import (
	"encoding/json"
	"time"
)

// TaskKind identifies the unit of work a queued task performs.
type TaskKind string

const (
	TaskDiscoverDay     TaskKind = "discover_day"
	TaskEnrichBatch     TaskKind = "enrich_batch"
	TaskRefreshMetadata TaskKind = "refresh_metadata"
)

// TaskStatus tracks a task through the queue.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is one unit of work pulled from the shared queue. Delivery is
// at-least-once: a lease that expires puts the task back in rotation, so
// every handler must be idempotent.
type Task struct {
	ID         string          `json:"id"`
	Kind       TaskKind        `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Status     TaskStatus      `json:"status"`
	Attempts   int             `json:"attempts"`
	LeaseUntil *time.Time      `json:"lease_until,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DiscoverDayPayload asks a worker to collect candidate titles from one
// day-of-year page.
type DiscoverDayPayload struct {
	Month string `json:"month"`
	Day   int    `json:"day"`
}

// EnrichBatchPayload carries one fixed-size chunk of candidate titles
// through SPARQL enrichment. RunID ties the batch back to the discovery
// run's countdown counter.
type EnrichBatchPayload struct {
	RunID  string   `json:"run_id"`
	Month  string   `json:"month"`
	Day    int      `json:"day"`
	Titles []string `json:"titles"`
}

// RefreshMetadataPayload names stored persons whose article statistics
// should be re-scraped.
type RefreshMetadataPayload struct {
	PersonIDs []string `json:"person_ids"`
}

package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a single append-only audit record. Entries are never mutated
// after creation; every state transition in the pipeline produces exactly
// one entry.
type Entry struct {
	ID          string                 `json:"id"`
	Category    string                 `json:"category"`
	Subcategory string                 `json:"subcategory"`
	Actor       string                 `json:"actor"`
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Sink receives audit entries. Implementations must be safe for concurrent
// use; Append must never block the caller on downstream failures.
type Sink interface {
	Append(category, subcategory, actor, action, resource string, data map[string]interface{})
	Close() error
}

// newEntry builds an entry with a fresh ID and timestamp
func newEntry(category, subcategory, actor, action, resource string, data map[string]interface{}) Entry {
	return Entry{
		ID:          uuid.New().String(),
		Category:    category,
		Subcategory: subcategory,
		Actor:       actor,
		Action:      action,
		Resource:    resource,
		Data:        data,
		Timestamp:   time.Now().UTC(),
	}
}

// NopSink discards all entries. Selected when no audit backend is configured.
type NopSink struct{}

// Append discards the entry
func (NopSink) Append(category, subcategory, actor, action, resource string, data map[string]interface{}) {
}

// Close is a no-op
func (NopSink) Close() error { return nil }

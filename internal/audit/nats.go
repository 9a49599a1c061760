package audit

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// AuditSubject is the NATS subject audit entries are published on
const AuditSubject = "audit.entries"

// NATSSink publishes audit entries to a NATS subject
type NATSSink struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSSink creates a sink publishing to the audit.entries subject
func NewNATSSink(nc *nats.Conn, logger *slog.Logger) *NATSSink {
	return &NATSSink{nc: nc, logger: logger}
}

// Append publishes the entry. Publish failures are logged and dropped so the
// pipeline is never blocked on the audit transport.
func (s *NATSSink) Append(category, subcategory, actor, action, resource string, data map[string]interface{}) {
	entry := newEntry(category, subcategory, actor, action, resource, data)

	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("Failed to marshal audit entry", "error", err, "entry_id", entry.ID)
		return
	}

	if err := s.nc.Publish(AuditSubject, payload); err != nil {
		s.logger.Error("Failed to publish audit entry", "error", err, "entry_id", entry.ID)
	}
}

// Close flushes outstanding publishes
func (s *NATSSink) Close() error {
	return s.nc.Flush()
}

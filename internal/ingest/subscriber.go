package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opsmend/opsmend/internal/cluster"
	"github.com/opsmend/opsmend/internal/metrics"
)

// EventSubject is the NATS subject producers publish operational events on
const EventSubject = "events.operational"

// EventMessage is the wire shape of an ingested event
type EventMessage struct {
	Type     string                 `json:"type"`
	Severity string                 `json:"severity,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Subscriber feeds NATS operational events into the cluster engine after
// schema validation. Malformed events are dropped with a log; producers are
// never notified.
type Subscriber struct {
	nc      *nats.Conn
	engine  *cluster.Engine
	schema  *jsonschema.Schema
	metrics *metrics.Metrics
	logger  *slog.Logger
	queue   string

	sub *nats.Subscription
}

// NewSubscriber creates an event subscriber
func NewSubscriber(nc *nats.Conn, engine *cluster.Engine, m *metrics.Metrics, queue string, logger *slog.Logger) (*Subscriber, error) {
	schema, err := compileEventSchema()
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		nc:      nc,
		engine:  engine,
		schema:  schema,
		metrics: m,
		logger:  logger,
		queue:   queue,
	}, nil
}

// Subscribe starts listening for operational events and blocks until the
// context is cancelled
func (s *Subscriber) Subscribe(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(EventSubject, s.queue, s.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", EventSubject, err)
	}
	s.sub = sub
	s.logger.Info("Subscribed to operational events", "subject", EventSubject, "queue", s.queue)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return nil
}

// handleMessage validates and ingests one event message
func (s *Subscriber) handleMessage(msg *nats.Msg) {
	var raw interface{}
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		s.logger.Warn("Dropping malformed event payload", "error", err)
		s.metrics.EventsInvalidTotal.Inc()
		return
	}

	if err := s.schema.Validate(raw); err != nil {
		s.logger.Warn("Dropping event failing schema validation", "error", err)
		s.metrics.EventsInvalidTotal.Inc()
		return
	}

	var ev EventMessage
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Warn("Dropping undecodable event", "error", err)
		s.metrics.EventsInvalidTotal.Inc()
		return
	}

	s.engine.Ingest(ev.Type, ev.Payload, ev.Severity)
}

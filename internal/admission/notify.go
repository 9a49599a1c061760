package admission

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opsmend/opsmend/internal/model"
)

// NotificationSubject is the NATS subject admission notifications go out on
const NotificationSubject = "admission.notifications"

// Notifier surfaces denials and escalations to a higher-authority channel.
// Escalations currently have no resolution flow on the other side; they are
// emitted for visibility and the decision stands as an effective denial.
type Notifier interface {
	NotifyDenial(req *model.ApprovalRequest, result *model.ApprovalResult)
	NotifyEscalation(req *model.ApprovalRequest, result *model.ApprovalResult)
}

// NopNotifier discards notifications. Selected when NATS is not configured.
type NopNotifier struct{}

// NotifyDenial discards the notification
func (NopNotifier) NotifyDenial(req *model.ApprovalRequest, result *model.ApprovalResult) {}

// NotifyEscalation discards the notification
func (NopNotifier) NotifyEscalation(req *model.ApprovalRequest, result *model.ApprovalResult) {}

// notification is the wire shape published on the notification subject
type notification struct {
	Kind      string                 `json:"kind"` // denial or escalation
	RequestID string                 `json:"request_id"`
	Requester string                 `json:"requester"`
	Resource  string                 `json:"resource"`
	Decision  string                 `json:"decision"`
	RiskScore float64                `json:"risk_score"`
	Reason    string                 `json:"reason"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// NATSNotifier publishes admission notifications to NATS
type NATSNotifier struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSNotifier creates a notifier publishing to admission.notifications
func NewNATSNotifier(nc *nats.Conn, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{nc: nc, logger: logger}
}

// NotifyDenial publishes a denial notification
func (n *NATSNotifier) NotifyDenial(req *model.ApprovalRequest, result *model.ApprovalResult) {
	n.publish("denial", req, result)
}

// NotifyEscalation publishes an escalation notification
func (n *NATSNotifier) NotifyEscalation(req *model.ApprovalRequest, result *model.ApprovalResult) {
	n.publish("escalation", req, result)
}

func (n *NATSNotifier) publish(kind string, req *model.ApprovalRequest, result *model.ApprovalResult) {
	msg := notification{
		Kind:      kind,
		RequestID: req.RequestID,
		Requester: req.Requester,
		Resource:  req.ResourceID,
		Decision:  string(result.Decision),
		RiskScore: result.RiskScore,
		Reason:    result.Reason,
		Timestamp: time.Now().UTC(),
		Context:   req.Context,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("Failed to marshal admission notification", "error", err)
		return
	}

	if err := n.nc.Publish(NotificationSubject, payload); err != nil {
		n.logger.Error("Failed to publish admission notification",
			"error", err, "request_id", req.RequestID, "kind", kind)
	}
}

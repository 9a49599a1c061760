package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Executor performs the domain work of a mission. Implementations must be
// safe to invoke from multiple pool workers and must honor the context
// deadline.
type Executor interface {
	Execute(ctx context.Context, missionType string, missionContext map[string]interface{}) (map[string]interface{}, error)
}

// ExecuteSubject is the NATS request subject for mission execution
const ExecuteSubject = "missions.execute"

// executeRequest is the wire shape sent to a remote executor
type executeRequest struct {
	MissionType string                 `json:"mission_type"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// executeResponse is the wire shape returned by a remote executor
type executeResponse struct {
	OK     bool                   `json:"ok"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// NATSExecutor dispatches missions over NATS request/reply
type NATSExecutor struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSExecutor creates an executor requesting on missions.execute
func NewNATSExecutor(nc *nats.Conn, logger *slog.Logger) *NATSExecutor {
	return &NATSExecutor{nc: nc, logger: logger}
}

// Execute sends the mission to the remote executor and waits for its reply
// within the context deadline
func (e *NATSExecutor) Execute(ctx context.Context, missionType string, missionContext map[string]interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(executeRequest{
		MissionType: missionType,
		Context:     missionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	msg, err := e.nc.RequestWithContext(ctx, ExecuteSubject, payload)
	if err != nil {
		return nil, fmt.Errorf("executor request failed: %w", err)
	}

	var resp executeResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode executor response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("executor reported failure: %s", resp.Error)
	}
	return resp.Result, nil
}

// NopExecutor acknowledges missions without performing work. Selected when
// no executor transport is configured.
type NopExecutor struct{}

// Execute returns a canned acknowledgement
func (NopExecutor) Execute(ctx context.Context, missionType string, missionContext map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{
		"acknowledged": true,
		"mission_type": missionType,
		"executed_at":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

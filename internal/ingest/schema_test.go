package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSchemaValidation(t *testing.T) {
	schema, err := compileEventSchema()
	require.NoError(t, err)

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"minimal event", `{"type": "guardian.policy_violation"}`, true},
		{"full event", `{"type": "system.boot_failure", "severity": "critical", "payload": {"host": "node-3"}}`, true},
		{"missing type", `{"severity": "high"}`, false},
		{"empty type", `{"type": ""}`, false},
		{"bad severity", `{"type": "agent.error", "severity": "urgent"}`, false},
		{"payload not object", `{"type": "agent.error", "payload": "oops"}`, false},
		{"unknown field", `{"type": "agent.error", "extra": 1}`, false},
		{"not an object", `["agent.error"]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.doc), &raw))
			err := schema.Validate(raw)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.MaxConcurrentMissions)
	assert.Equal(t, 15*time.Second, cfg.BootInterval)
	assert.Equal(t, 180*time.Second, cfg.SteadyIntervalMin)
	assert.Equal(t, 300*time.Second, cfg.SteadyIntervalMax)
	assert.Equal(t, 0.7, cfg.BootThreshold)
	assert.Equal(t, 0.3, cfg.SteadyThreshold)
	assert.Equal(t, 0.3, cfg.AutoApproveThreshold)
	assert.Equal(t, 0.7, cfg.EscalationThreshold)
	assert.Equal(t, 10*time.Minute, cfg.ExecTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ClusterRetention)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPSMEND_MAX_CONCURRENT_MISSIONS", "5")
	t.Setenv("OPSMEND_BOOT_INTERVAL", "30s")
	t.Setenv("OPSMEND_AUTO_APPROVE_THRESHOLD", "0.25")
	t.Setenv("OPSMEND_AUDIT_BACKEND", "postgres")

	cfg := Load()
	assert.Equal(t, 5, cfg.MaxConcurrentMissions)
	assert.Equal(t, 30*time.Second, cfg.BootInterval)
	assert.Equal(t, 0.25, cfg.AutoApproveThreshold)
	assert.Equal(t, "postgres", cfg.AuditBackend)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OPSMEND_MAX_CONCURRENT_MISSIONS", "many")
	t.Setenv("OPSMEND_BOOT_INTERVAL", "soon")
	t.Setenv("OPSMEND_BOOT_THRESHOLD", "high")

	cfg := Load()
	assert.Equal(t, 3, cfg.MaxConcurrentMissions)
	assert.Equal(t, 15*time.Second, cfg.BootInterval)
	assert.Equal(t, 0.7, cfg.BootThreshold)
}

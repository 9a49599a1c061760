package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the opsmend service, resolved from
// environment variables with sensible defaults.
type Config struct {
	HTTPAddr string
	NATSURL  string

	MaxConcurrentMissions int
	BootInterval          time.Duration
	SteadyIntervalMin     time.Duration
	SteadyIntervalMax     time.Duration
	BootThreshold         float64
	SteadyThreshold       float64
	AutoApproveThreshold  float64
	EscalationThreshold   float64

	EngineInterval    time.Duration
	SchedulerInterval time.Duration
	ExecTimeout       time.Duration
	ClusterRetention  time.Duration

	AuditBackend string // nats, postgres, none
	AuditDSN     string

	PrincipalsPath string
	UsersPath      string
	JWTSecret      string
}

// Load resolves the configuration from the environment
func Load() Config {
	cfg := Config{
		HTTPAddr: getenv("OPSMEND_HTTP_ADDR", ":8080"),
		NATSURL:  getenv("OPSMEND_NATS_URL", "nats://localhost:4222"),

		MaxConcurrentMissions: getenvInt("OPSMEND_MAX_CONCURRENT_MISSIONS", 3),
		BootInterval:          getenvDuration("OPSMEND_BOOT_INTERVAL", 15*time.Second),
		SteadyIntervalMin:     getenvDuration("OPSMEND_STEADY_INTERVAL_MIN", 180*time.Second),
		SteadyIntervalMax:     getenvDuration("OPSMEND_STEADY_INTERVAL_MAX", 300*time.Second),
		BootThreshold:         getenvFloat("OPSMEND_BOOT_THRESHOLD", 0.7),
		SteadyThreshold:       getenvFloat("OPSMEND_STEADY_THRESHOLD", 0.3),
		AutoApproveThreshold:  getenvFloat("OPSMEND_AUTO_APPROVE_THRESHOLD", 0.3),
		EscalationThreshold:   getenvFloat("OPSMEND_ESCALATION_THRESHOLD", 0.7),

		EngineInterval:    getenvDuration("OPSMEND_ENGINE_INTERVAL", 5*time.Second),
		SchedulerInterval: getenvDuration("OPSMEND_SCHEDULER_INTERVAL", 5*time.Second),
		ExecTimeout:       getenvDuration("OPSMEND_EXEC_TIMEOUT", 10*time.Minute),
		ClusterRetention:  getenvDuration("OPSMEND_CLUSTER_RETENTION", 24*time.Hour),

		AuditBackend: getenv("OPSMEND_AUDIT_BACKEND", "nats"),
		AuditDSN:     os.Getenv("OPSMEND_AUDIT_DSN"),

		PrincipalsPath: getenv("OPSMEND_PRINCIPALS_PATH", "config/principals.yaml"),
		UsersPath:      getenv("OPSMEND_USERS_PATH", "config/users.yaml"),
		JWTSecret:      os.Getenv("OPSMEND_JWT_SECRET"),
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-me"
	}
	return cfg
}

// getenv gets an environment variable with a default value
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvInt gets an environment variable as an integer with a default value
func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getenvFloat gets an environment variable as a float with a default value
func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getenvDuration gets an environment variable as a duration with a default value
func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

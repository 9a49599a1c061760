package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSink appends audit entries to an audit_entries table
type PostgresSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSink opens a connection pool and ensures the audit table exists
func NewPostgresSink(dsn string, logger *slog.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	createTable := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id          TEXT PRIMARY KEY,
			category    TEXT NOT NULL,
			subcategory TEXT NOT NULL,
			actor       TEXT NOT NULL,
			action      TEXT NOT NULL,
			resource    TEXT NOT NULL,
			data        JSONB,
			created_at  TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	return &PostgresSink{db: db, logger: logger}, nil
}

// Append inserts the entry. Insert failures are logged and dropped.
func (s *PostgresSink) Append(category, subcategory, actor, action, resource string, data map[string]interface{}) {
	entry := newEntry(category, subcategory, actor, action, resource, data)

	var dataJSON []byte
	if data != nil {
		var err error
		dataJSON, err = json.Marshal(data)
		if err != nil {
			s.logger.Error("Failed to marshal audit data", "error", err, "entry_id", entry.ID)
			return
		}
	}

	query := `
		INSERT INTO audit_entries (id, category, subcategory, actor, action, resource, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.Exec(query, entry.ID, entry.Category, entry.Subcategory,
		entry.Actor, entry.Action, entry.Resource, dataJSON, entry.Timestamp); err != nil {
		s.logger.Error("Failed to insert audit entry", "error", err, "entry_id", entry.ID)
	}
}

// Close closes the database connection pool
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

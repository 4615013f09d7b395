package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"retouch-server/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based export store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	tableStmt := `
	CREATE TABLE IF NOT EXISTS exports (
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (session_id, id)
	);`
	if _, err = db.Exec(tableStmt); err != nil {
		log.Fatalf("failed to create exports table: %v", err)
	}

	return &sqliteStore{db: db}
}

func (s *sqliteStore) Create(ctx context.Context, export *core.Export) (string, error) {
	if export.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	id := ulid.Make().String()
	export.ID = id
	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (id, session_id, filename, size, created_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		export.ID, export.SessionID, export.Filename, export.Size, export.CreatedAt, export.Data,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert export: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"export_id": id,
		"filename":  export.Filename,
	}).Info("Export created successfully")
	return id, nil
}

func (s *sqliteStore) Get(ctx context.Context, sessionID, id string) (*core.Export, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, filename, size, created_at, data FROM exports WHERE session_id = ? AND id = ?`,
		sessionID, id,
	)

	var export core.Export
	err := row.Scan(&export.ID, &export.SessionID, &export.Filename, &export.Size, &export.CreatedAt, &export.Data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export with id %s not found for session %s", id, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query export: %v", err)
	}

	return &export, nil
}

func (s *sqliteStore) List(ctx context.Context, sessionID string) ([]*core.Export, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, filename, size, created_at FROM exports WHERE session_id = ? ORDER BY created_at DESC, id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %v", err)
	}
	defer rows.Close()

	exports := make([]*core.Export, 0)
	for rows.Next() {
		var export core.Export
		if err := rows.Scan(&export.ID, &export.SessionID, &export.Filename, &export.Size, &export.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export row: %v", err)
		}
		exports = append(exports, &export)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate export rows: %v", err)
	}

	return exports, nil
}

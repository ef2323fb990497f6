// Package sqlite provides a SQLite-backed mqttier.SessionStore, so that a
// client connecting with clean start disabled can resume its in-flight
// publishes after a process restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/vitalvas/mqttier"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	busyTimeoutMS     = 5000
	connectionTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS inflight (
	client_id TEXT    NOT NULL,
	packet_id INTEGER NOT NULL,
	released  INTEGER NOT NULL DEFAULT 0,
	message   BLOB    NOT NULL,
	PRIMARY KEY (client_id, packet_id)
)`

// Store persists in-flight records in a single SQLite table keyed by
// client identifier and packet identifier.
type Store struct {
	db   *sql.DB
	path string
}

var _ mqttier.SessionStore = (*Store)(nil)

// Open opens or creates the database at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	_ = os.Chmod(path, filePermissions) //nolint:errcheck

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, clientID string, rec mqttier.InflightRecord) error {
	data, err := json.Marshal(rec.Message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO inflight (client_id, packet_id, released, message) VALUES (?, ?, ?, ?)
		 ON CONFLICT (client_id, packet_id) DO UPDATE SET released = excluded.released, message = excluded.message`,
		clientID, rec.PacketID, rec.Released, data)
	if err != nil {
		return fmt.Errorf("saving packet %d: %w", rec.PacketID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, clientID string, packetID uint16) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM inflight WHERE client_id = ? AND packet_id = ?`, clientID, packetID); err != nil {
		return fmt.Errorf("deleting packet %d: %w", packetID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, clientID string) ([]mqttier.InflightRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT packet_id, released, message FROM inflight WHERE client_id = ? ORDER BY packet_id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	defer rows.Close()

	var out []mqttier.InflightRecord
	for rows.Next() {
		var (
			rec  mqttier.InflightRecord
			data []byte
		)
		if err := rows.Scan(&rec.PacketID, &rec.Released, &data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.Message = new(mqttier.Message)
		if err := json.Unmarshal(data, rec.Message); err != nil {
			return nil, fmt.Errorf("decoding packet %d: %w", rec.PacketID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, clientID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM inflight WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

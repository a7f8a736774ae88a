package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/criteria"
	_ "modernc.org/sqlite"
)

const recordsSchema = `CREATE TABLE IF NOT EXISTS records (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (kind, id)
)`

// OpenSQLite opens (or creates) a SQLite database and applies the records schema.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// single writer keeps :memory: databases shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err = db.Exec(recordsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// SQLStore keeps records of one kind as JSON documents in the records table.
// *T must implement dao.Record.
type SQLStore[T any] struct {
	db   *sql.DB
	kind string
}

// NewSQLStore returns a store for the given record kind.
func NewSQLStore[T any](db *sql.DB, kind string) *SQLStore[T] {
	return &SQLStore[T]{db: db, kind: kind}
}

// Save upserts the record.
func (s *SQLStore[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	record, ok := any(v).(dao.Record)
	if !ok {
		return fmt.Errorf("%T does not implement dao.Record", v)
	}
	if record.RecordID() == "" {
		return dao.ErrInvalidID
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", s.kind, record.RecordID(), err)
	}
	createdAt := time.Now()
	if ts, ok := any(v).(timestamped); ok {
		createdAt = ts.Created()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (kind, id, status, created_at, body) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET status = excluded.status, body = excluded.body`,
		s.kind, record.RecordID(), record.State(), createdAt.UTC().UnixNano(), body)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", s.kind, record.RecordID(), err)
	}
	return nil
}

// Load reads one record.
func (s *SQLStore[T]) Load(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE kind = ? AND id = ?`, s.kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", s.kind, id, err)
	}
	ret := new(T)
	if err = json.Unmarshal(body, ret); err != nil {
		return nil, fmt.Errorf("unmarshal %s %s: %w", s.kind, id, err)
	}
	return ret, nil
}

// Delete removes one record.
func (s *SQLStore[T]) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, s.kind, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", s.kind, id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return dao.ErrNotFound
	}
	return nil
}

// List returns matching records ordered by creation time. A single query
// provides a consistent snapshot.
func (s *SQLStore[T]) List(ctx context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, body FROM records WHERE kind = ? ORDER BY created_at, rowid`, s.kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.kind, err)
	}
	defer rows.Close()
	var ret []*T
	for rows.Next() {
		var status string
		var body []byte
		if err = rows.Scan(&status, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.kind, err)
		}
		if !criteria.FilterByState(status, parameters) {
			continue
		}
		record := new(T)
		if err = json.Unmarshal(body, record); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", s.kind, err)
		}
		ret = append(ret, record)
	}
	return ret, rows.Err()
}

var _ dao.Service[string, struct{}] = (*SQLStore[struct{}])(nil)

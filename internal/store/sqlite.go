package store

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the document as one JSON row in a local SQLite database.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *SQLiteStore) Read(ctx context.Context) (model.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?;`, documentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewDocument(), nil
	}
	if err != nil {
		return model.Document{}, err
	}
	return decode([]byte(body))
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(*model.Document) error) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur := model.NewDocument()
	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?;`, documentID).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return model.Document{}, err
	default:
		if cur, err = decode([]byte(body)); err != nil {
			return model.Document{}, err
		}
	}

	next, err := apply(cur, fn)
	if err != nil {
		return model.Document{}, err
	}
	b, err := encode(next)
	if err != nil {
		return model.Document{}, err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (id, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at;`,
		documentID, string(b), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return model.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Document{}, err
	}
	return next, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/reachravi55/myDailyRoutine/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentsTable = "routine_documents"

// PostgresStore keeps the document as a JSONB row. Updates lock the row
// with SELECT ... FOR UPDATE, so several processes can share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres store not initialized")
	}
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+documentsTable+` (
    id         TEXT PRIMARY KEY,
    body       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("ensure document schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context) (model.Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM `+documentsTable+` WHERE id = $1`, documentID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewDocument(), nil
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("read document: %w", err)
	}
	return decode(body)
}

func (s *PostgresStore) Update(ctx context.Context, fn func(*model.Document) error) (model.Document, error) {
	seed, err := encode(model.NewDocument())
	if err != nil {
		return model.Document{}, err
	}

	var out model.Document
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+documentsTable+` (id, body) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			documentID, seed); err != nil {
			return fmt.Errorf("seed document: %w", err)
		}

		var body []byte
		if err := tx.QueryRow(ctx,
			`SELECT body FROM `+documentsTable+` WHERE id = $1 FOR UPDATE`, documentID).Scan(&body); err != nil {
			return fmt.Errorf("lock document: %w", err)
		}
		cur, err := decode(body)
		if err != nil {
			return err
		}

		next, err := apply(cur, fn)
		if err != nil {
			return err
		}
		b, err := encode(next)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE `+documentsTable+` SET body = $2, updated_at = now() WHERE id = $1`,
			documentID, b); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return model.Document{}, err
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/reachravi55/myDailyRoutine/internal/model"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// Store holds the single routine document. Update runs fn against a private
// copy of the latest committed document and commits the result atomically;
// concurrent updates are applied one at a time. If fn fails nothing is written.
type Store interface {
	Read(ctx context.Context) (model.Document, error)
	Update(ctx context.Context, fn func(*model.Document) error) (model.Document, error)
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	documentID = "default"
)

type Options struct {
	Driver  string
	DSN     string
	DataDir string
}

// Open builds the configured store. Blank driver means file.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile, "":
		return NewFileStore(opts.DataDir)
	case DriverSQLite:
		path := opts.DSN
		if path == "" {
			path = filepath.Join(opts.DataDir, "routine.db")
		}
		return OpenSQLite(path)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("postgres store needs a dsn")
		}
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// apply runs fn on a deep copy of cur.
func apply(cur model.Document, fn func(*model.Document) error) (model.Document, error) {
	next := cur.Clone()
	next.Normalize()
	if err := fn(&next); err != nil {
		return model.Document{}, err
	}
	next.Normalize()
	return next, nil
}

func decode(b []byte) (model.Document, error) {
	doc := model.NewDocument()
	if len(strings.TrimSpace(string(b))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return model.Document{}, fmt.Errorf("decode document: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

func encode(doc model.Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

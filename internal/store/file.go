package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/reachravi55/myDailyRoutine/internal/model"
)

const (
	fileName = "routine.json"
	lockName = fileName + ".lock"

	lockRetry = 10 * time.Millisecond
)

// FileStore persists the document as indented JSON in dataDir/routine.json.
// Every Read and Update goes to disk under an advisory lock on
// routine.json.lock, so a daemon and CLI commands sharing a data directory
// see each other's commits. Writes go to a temp file that is renamed over the
// old one.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	s := &FileStore{
		path: filepath.Join(dataDir, fileName),
		lock: flock.New(filepath.Join(dataDir, lockName)),
	}
	// Surface a corrupt file at open rather than on first use.
	if _, err := s.Read(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Read(ctx context.Context) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryRLockContext(ctx, lockRetry); err != nil {
		return model.Document{}, fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()
	return s.loadLocked()
}

// Update re-reads the file under an exclusive lock, so fn always sees the
// latest commit from any process.
func (s *FileStore) Update(ctx context.Context, fn func(*model.Document) error) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryLockContext(ctx, lockRetry); err != nil {
		return model.Document{}, fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()

	cur, err := s.loadLocked()
	if err != nil {
		return model.Document{}, err
	}
	next, err := apply(cur, fn)
	if err != nil {
		return model.Document{}, err
	}
	if err := s.saveLocked(next); err != nil {
		return model.Document{}, err
	}
	return next.Clone(), nil
}

func (s *FileStore) loadLocked() (model.Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewDocument(), nil
		}
		return model.Document{}, err
	}
	doc, err := decode(b)
	if err != nil {
		return model.Document{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) saveLocked(doc model.Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Close()
}

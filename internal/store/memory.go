package store

import (
	"context"
	"sync"

	"github.com/reachravi55/myDailyRoutine/internal/model"
)

// MemoryStore keeps the document in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	doc model.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doc: model.NewDocument()}
}

func (s *MemoryStore) Read(ctx context.Context) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(*model.Document) error) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := apply(s.doc, fn)
	if err != nil {
		return model.Document{}, err
	}
	s.doc = next
	return next.Clone(), nil
}

func (s *MemoryStore) Close() error { return nil }

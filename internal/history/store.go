package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const (
	recentKey    = "scuba-recent-searches"
	DefaultLimit   = 10
)

// Store keeps the most recent submitted inputs, newest first, in a local
// leveldb database.
type Store struct {
	mu    sync.Mutex
	db    *leveldb.DB
	limit int
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	const op = "history.Open"

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{db: db, limit: DefaultLimit}, nil
}

// OpenMemory returns a store that lives only as long as the process.
func OpenMemory() (*Store, error) {
	const op = "history.OpenMemory"

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{db: db, limit: DefaultLimit}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add moves query to the front of the list, dropping an exact duplicate and
// anything past the limit.
func (s *Store) Add(ctx context.Context, query string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := strings.TrimSpace(query)
	if value == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	next := make([]string, 0, len(items)+1)
	next = append(next, value)
	for _, item := range items {
		if item != value {
			next = append(next, item)
		}
	}
	if len(next) > s.limit {
		next = next[:s.limit]
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("history.Add: %w", err)
	}
	if err := s.db.Put([]byte(recentKey), raw, nil); err != nil {
		return fmt.Errorf("history.Add: %w", err)
	}
	return nil
}

// List returns the recent inputs, newest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete([]byte(recentKey), nil); err != nil {
		return fmt.Errorf("history.Clear: %w", err)
	}
	return nil
}

// load tolerates a corrupt value by starting over with an empty list.
func (s *Store) load() ([]string, error) {
	raw, err := s.db.Get([]byte(recentKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history.load: %w", err)
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}, nil
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

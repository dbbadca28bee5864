package audit

import (
	"context"
	"sync"

	"github.com/Togather-Foundation/conduit/database"
)

// Storage persists audit records.
//
// Write receives the querier the coordinator chose: the endpoint's open
// transaction when the storage shares the endpoint's database service, a
// transaction on the storage's own backing connection otherwise, or nil
// for storages without one. DatabaseServiceName names the database service
// the storage writes through, so the coordinator can decide transaction
// sharing by comparable key rather than instance identity; storages not
// backed by a registry database service return "".
type Storage interface {
	Write(ctx context.Context, q database.Querier, records []Record) error
	Query(ctx context.Context, q database.Querier, filter Filter) ([]Record, error)
	Backing() *database.DB
	DatabaseServiceName() string
}

// MemoryStorage keeps records in process memory. Intended for tests and
// development; it has no transactional backing, so the coordinator buffers
// records and flushes them only after the handler succeeds.
type MemoryStorage struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Write(ctx context.Context, _ database.Querier, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *MemoryStorage) Query(ctx context.Context, _ database.Querier, filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.EntityTable != "" && rec.EntityTable != filter.EntityTable {
			continue
		}
		if filter.EntityID != "" && rec.EntityID != filter.EntityID {
			continue
		}
		if !filter.Since.IsZero() && rec.RecordedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, rec)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	return matched, nil
}

func (s *MemoryStorage) Backing() *database.DB { return nil }

func (s *MemoryStorage) DatabaseServiceName() string { return "" }

// Len returns the number of persisted records.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

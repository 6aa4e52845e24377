package history

import "sync"

// MemoryStore keeps run history in memory only (no persistence).
type MemoryStore struct {
	records []Record
	mu      sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make([]Record, 0),
	}
}

// Append stores a record in memory.
func (s *MemoryStore) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	return nil
}

// Page returns a page of records, newest first.
func (s *MemoryStore) Page(page, perPage int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return paginate(s.records, page, perPage), nil
}

// Clear removes all records.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]Record, 0)
	return nil
}

// Records returns a copy of all records in insertion order.
func (s *MemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Record, len(s.records))
	copy(result, s.records)
	return result
}

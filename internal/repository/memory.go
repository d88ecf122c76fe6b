package repository

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"tigertrust/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MemoryStore keeps accounts and events in process memory. It honours the same
// create/compare-and-swap contract as ProfileRepository and is used in tests.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[domain.Address][]byte
	events   map[domain.Address][]domain.ProfileEvent
	commits  int
	err      error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[domain.Address][]byte),
		events:   make(map[domain.Address][]domain.ProfileEvent),
	}
}

// WithError makes every subsequent call fail with err.
func (m *MemoryStore) WithError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Put stores raw bytes directly, bypassing the journal.
func (m *MemoryStore) Put(addr domain.Address, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = bytes.Clone(data)
}

func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *MemoryStore) GetAccount(_ context.Context, addr domain.Address) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	data, ok := m.accounts[addr]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(data), true, nil
}

func (m *MemoryStore) Commit(_ context.Context, w AccountWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	current, exists := m.accounts[w.Address]
	switch {
	case w.Previous == nil && exists:
		return fmt.Errorf("failed to insert profile account %s: already present", w.Address)
	case w.Previous != nil && (!exists || !bytes.Equal(current, w.Previous)):
		return ErrStaleWrite
	}

	e := w.Event
	if e.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		e.ID = id
	}
	m.accounts[w.Address] = bytes.Clone(w.Data)
	m.events[w.Address] = append(m.events[w.Address], e)
	m.commits++
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, addr domain.Address, limit int) ([]domain.ProfileEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	all := m.events[addr]
	var result []domain.ProfileEvent
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

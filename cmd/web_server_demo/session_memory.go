package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memorySessionStore keeps sessions in process, keyed by an opaque id cookie.
// Entries are stored encoded so handlers never share a live value.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	secure   bool
	now      func() time.Time
}

func newMemorySessionStore(secure bool) *memorySessionStore {
	return &memorySessionStore{
		sessions: map[string]memoryEntry{},
		secure:   secure,
		now:      time.Now,
	}
}

func (m *memorySessionStore) Get(e echo.Context) (*SessionData, error) {
	id := readSessionID(e)
	if id == "" {
		return &SessionData{}, nil
	}

	data, ok, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	// unknown ids are not adopted; Save will mint a fresh one
	if !ok {
		return &SessionData{}, nil
	}

	return data, nil
}

func (m *memorySessionStore) Save(e echo.Context, data *SessionData) error {
	if data.ID == "" {
		data.ID = uuid.NewString()
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("could not encode session: %w", err)
	}

	maxAge := data.maxAge()
	now := m.now()

	m.mu.Lock()
	m.sweep(now)
	m.sessions[data.ID] = memoryEntry{
		data:      b,
		expiresAt: now.Add(time.Duration(maxAge) * time.Second),
	}
	m.mu.Unlock()

	writeSessionID(e, data.ID, maxAge, m.secure)

	return nil
}

func (m *memorySessionStore) Destroy(e echo.Context) error {
	if id := readSessionID(e); id != "" {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}

	writeSessionID(e, "", -1, m.secure)

	return nil
}

func (m *memorySessionStore) lookup(id string) (*SessionData, bool, error) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok && !m.now().Before(entry.expiresAt) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, false, nil
	}

	var data SessionData
	if err := json.Unmarshal(entry.data, &data); err != nil {
		return nil, false, fmt.Errorf("could not decode session: %w", err)
	}
	data.ID = id

	return &data, true, nil
}

// sweep drops abandoned logins and lapsed sessions nobody asked for again.
// Callers hold mu.
func (m *memorySessionStore) sweep(now time.Time) {
	for id, entry := range m.sessions {
		if !now.Before(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
}

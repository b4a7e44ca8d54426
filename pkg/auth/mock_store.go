package auth

import (
	"sync"
)

// MockStore is an in-memory SessionStore with error injection, for tests
// and for wiring fetchers without touching the keychain
type MockStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates an empty mock store
func NewMockStore(sessions ...*Session) *MockStore {
	m := &MockStore{sessions: make(map[string]*Session)}
	for _, s := range sessions {
		c := *s
		m.sessions[s.Site] = &c
	}
	return m
}

func (m *MockStore) Store(session *Session) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if session == nil || session.Site == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := *session
	m.sessions[session.Site] = &c
	return nil
}

func (m *MockStore) Retrieve(site string) (*Session, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[site]
	if !ok {
		return nil, ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (m *MockStore) List() ([]*Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		c := *s
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockStore) Delete(site string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[site]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, site)
	return nil
}

func (m *MockStore) Exists(site string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[site]
	return ok
}

// Count returns the number of stored sessions
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StaticProvider serves fixed sessions; a missing site yields ErrSessionNotFound
type StaticProvider map[string]*Session

func (p StaticProvider) Session(site string) (*Session, error) {
	if s, ok := p[site]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

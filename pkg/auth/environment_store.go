package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads sessions from MEDIAKEEPER_<SITE>_COOKIE,
// MEDIAKEEPER_<SITE>_TOKEN and MEDIAKEEPER_<SITE>_USER_AGENT. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based session store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve builds a session for site from the environment
func (e *EnvironmentStore) Retrieve(site string) (*Session, error) {
	if site == "" {
		return nil, ErrInvalidSession
	}
	cookie := os.Getenv(envKey(site, "COOKIE"))
	token := os.Getenv(envKey(site, "TOKEN"))
	if cookie == "" && token == "" {
		return nil, ErrSessionNotFound
	}

	return &Session{
		Site:         site,
		Cookie:       cookie,
		Token:        token,
		UserAgent:    os.Getenv(envKey(site, "USER_AGENT")),
		LastModified: time.Now(),
	}, nil
}

// List returns the known sites that have environment sessions
func (e *EnvironmentStore) List() ([]*Session, error) {
	var sessions []*Session
	for _, site := range KnownSites {
		if s, err := e.Retrieve(site); err == nil {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(site string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment session exists for site
func (e *EnvironmentStore) Exists(site string) bool {
	_, err := e.Retrieve(site)
	return err == nil
}

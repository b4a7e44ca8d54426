package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mediakeeper"
	keyringPrefix  = "session_"
)

// KeyringStore keeps sessions in the system keychain
type KeyringStore struct{}

// NewKeyringStore returns a keychain store, or an error when no keychain is
// reachable (headless Linux without a secret service, for instance)
func NewKeyringStore() (*KeyringStore, error) {
	probe := "probe_" + fmt.Sprint(time.Now().UnixNano())
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)

	return &KeyringStore{}, nil
}

// Store saves a session to the system keychain
func (k *KeyringStore) Store(session *Session) error {
	if session == nil || session.Site == "" {
		return ErrInvalidSession
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+session.Site, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Retrieve gets the session for site from the system keychain
func (k *KeyringStore) Retrieve(site string) (*Session, error) {
	if site == "" {
		return nil, ErrInvalidSession
	}

	data, err := keyring.Get(keyringService, keyringPrefix+site)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// List probes every known site; go-keyring cannot enumerate keys
func (k *KeyringStore) List() ([]*Session, error) {
	var sessions []*Session
	for _, site := range KnownSites {
		if s, err := k.Retrieve(site); err == nil {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// Delete removes the session for site from the system keychain
func (k *KeyringStore) Delete(site string) error {
	if site == "" {
		return ErrInvalidSession
	}

	err := keyring.Delete(keyringService, keyringPrefix+site)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// Exists checks if a session for site is in the keychain
func (k *KeyringStore) Exists(site string) bool {
	if site == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+site)
	return err == nil
}

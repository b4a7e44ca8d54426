package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Sites with a session slot. The link fetchers look sessions up by these names.
const (
	SitePixiv = "pixiv"
	SiteNijie = "nijie"
	SiteSkeb  = "skeb"
)

// KnownSites lists every site a session can be stored for
var KnownSites = []string{SitePixiv, SiteNijie, SiteSkeb}

// Session is a stored login for one third-party site. Cookie is sent as the
// raw Cookie header; Token is sent as a bearer token where the site uses one.
type Session struct {
	Site         string    `json:"site"`
	Cookie       string    `json:"cookie,omitempty"`
	Token        string    `json:"token,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Headers returns the request headers carrying the session
func (s *Session) Headers() map[string]string {
	h := make(map[string]string)
	if s == nil {
		return h
	}
	if s.Cookie != "" {
		h["Cookie"] = s.Cookie
	}
	if s.Token != "" {
		h["Authorization"] = "Bearer " + s.Token
	}
	if s.UserAgent != "" {
		h["User-Agent"] = s.UserAgent
	}
	return h
}

// SessionStore is one backend holding sessions keyed by site
type SessionStore interface {
	Store(session *Session) error
	Retrieve(site string) (*Session, error)
	List() ([]*Session, error)
	Delete(site string) error
	Exists(site string) bool
}

// SessionProvider is the capability a site fetcher depends on
type SessionProvider interface {
	Session(site string) (*Session, error)
}

// Manager looks sessions up across its stores in priority order
type Manager struct {
	stores []SessionStore
}

// NewManager builds the store chain for source: "keyring", "file", "env", or
// "auto" (keyring when available, then the encrypted file, then environment).
func NewManager(source string) (*Manager, error) {
	var stores []SessionStore

	if source == "auto" || source == "keyring" {
		keyringStore, err := NewKeyringStore()
		if err == nil {
			stores = append(stores, keyringStore)
		} else if source == "keyring" {
			return nil, err
		}
	}

	if source == "auto" || source == "file" {
		configDir, err := getConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		fileStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"), "")
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted store: %w", err)
		}
		stores = append(stores, fileStore)
	}

	if source == "auto" || source == "env" {
		stores = append(stores, NewEnvironmentStore())
	}

	if len(stores) == 0 {
		return nil, fmt.Errorf("unknown session source %q", source)
	}
	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores
func NewManagerWithStores(stores ...SessionStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves a session in the first store that accepts it
func (m *Manager) Store(session *Session) error {
	if err := validate(session); err != nil {
		return err
	}
	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(session)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Session returns the session for site from the first store that has one
func (m *Manager) Session(site string) (*Session, error) {
	for _, store := range m.stores {
		if s, err := store.Retrieve(site); err == nil && s != nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, site)
}

// List returns the newest session per site across all stores, sorted by site
func (m *Manager) List() ([]*Session, error) {
	bySite := make(map[string]*Session)
	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if existing, ok := bySite[s.Site]; !ok || s.LastModified.After(existing.LastModified) {
				bySite[s.Site] = s
			}
		}
	}

	result := make([]*Session, 0, len(bySite))
	for _, s := range bySite {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Site < result[j].Site })
	return result, nil
}

// Delete removes the session for site from every store
func (m *Manager) Delete(site string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(site); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrSessionNotFound, site)
}

// IsKnownSite reports whether site has a session slot
func IsKnownSite(site string) bool {
	for _, s := range KnownSites {
		if s == site {
			return true
		}
	}
	return false
}

func validate(s *Session) error {
	if s == nil || s.Site == "" {
		return fmt.Errorf("%w: site is required", ErrInvalidSession)
	}
	if !IsKnownSite(s.Site) {
		return fmt.Errorf("%w: unknown site %q", ErrInvalidSession, s.Site)
	}
	if s.Cookie == "" && s.Token == "" {
		return fmt.Errorf("%w: cookie or token is required", ErrInvalidSession)
	}
	return nil
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "mediakeeper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "mediakeeper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mediakeeper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "mediakeeper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Masked returns a copy of the session with secrets shortened for display
func Masked(s *Session) *Session {
	if s == nil {
		return nil
	}
	return &Session{
		Site:         s.Site,
		Cookie:       maskString(s.Cookie),
		Token:        maskString(s.Token),
		UserAgent:    s.UserAgent,
		LastModified: s.LastModified,
	}
}

func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// envKey is the environment variable holding field for site
func envKey(site, field string) string {
	return "MEDIAKEEPER_" + strings.ToUpper(site) + "_" + field
}

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

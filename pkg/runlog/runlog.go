package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"mediakeeper/pkg/logger"
)

const filePrefix = "last-run-"

// Record summarizes one pipeline run. It is written after every run,
// failed runs included, and replaced by the next run of the same kind.
type Record struct {
	RunID          string        `json:"run_id"`
	Kind           string        `json:"kind"`
	Success        bool          `json:"success"`
	Stage          string        `json:"stage"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`
	Posts          int           `json:"posts"`
	Candidates     int           `json:"candidates"`
	Added          int           `json:"added"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	Removed        int           `json:"removed"`
	Kept           int           `json:"kept"`
	LinksDelegated int           `json:"links_delegated"`
	LinksFailed    int           `json:"links_failed"`
	LinksUnmatched int           `json:"links_unmatched"`
	GalleryPath    string        `json:"gallery_path,omitempty"`
	Version        int           `json:"version"`
}

// Manager reads and writes last-run records in one directory
type Manager struct {
	dir    string
	logger logger.Logger
}

// NewManager stores records in dir, or in the per-user data directory when
// dir is empty
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if dir == "" {
		dataDir, err := dataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "runs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	return &Manager{dir: dir, logger: log}, nil
}

// Dir returns the directory holding the records
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) path(kind string) string {
	return filepath.Join(m.dir, filePrefix+kind+".json")
}

// Save writes rec atomically, replacing the previous record of its kind
func (m *Manager) Save(rec *Record) error {
	if rec.Kind == "" {
		return fmt.Errorf("run record requires a kind")
	}
	rec.Version = 1
	final := m.path(rec.Kind)
	tempPath := final + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary run log: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode run log: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close run log: %w", err)
	}
	if err := os.Rename(tempPath, final); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace run log: %w", err)
	}

	m.logger.DebugWithFields("Run log saved", map[string]interface{}{
		"run_id":  rec.RunID,
		"kind":    rec.Kind,
		"success": rec.Success,
	})
	return nil
}

// Load returns the last record for kind, or nil when none was written yet
func (m *Manager) Load(kind string) (*Record, error) {
	file, err := os.Open(m.path(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer file.Close()

	var rec Record
	if err := json.NewDecoder(file).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode run log: %w", err)
	}
	return &rec, nil
}

// LoadAll returns the last record of every kind, ordered by kind
func (m *Manager) LoadAll() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read run log directory: %w", err)
	}

	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		kind := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json")
		rec, err := m.Load(kind)
		if err != nil {
			m.logger.WarnWithFields("Skipping unreadable run log", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
			continue
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// dataDirectory returns the per-user data directory for the current OS
func dataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "mediakeeper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "mediakeeper")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "mediakeeper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "mediakeeper")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return dataDir, nil
}

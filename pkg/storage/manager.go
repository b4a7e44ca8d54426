package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const tempSuffix = ".tmp"

// FileInfo describes one stored media file
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// Manager owns one media directory: dedup-by-filename, atomic writes,
// timestamp rewrites and the retention partition.
type Manager struct {
	dir   string
	known map[string]bool
	mu    sync.RWMutex
}

// NewManager creates dir if needed and indexes the files already in it
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	m := &Manager{
		dir:   dir,
		known: make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		m.known[entry.Name()] = true
	}
	return nil
}

// Exists reports whether filename is already stored
func (m *Manager) Exists(filename string) bool {
	m.mu.RLock()
	cached := m.known[filename]
	m.mu.RUnlock()
	if cached {
		return true
	}

	if _, err := os.Stat(m.Path(filename)); err == nil {
		m.mu.Lock()
		m.known[filename] = true
		m.mu.Unlock()
		return true
	}
	return false
}

// Save writes r to filename through a temporary file and rename, so a
// partially written file is never visible under its final name.
func (m *Manager) Save(r io.Reader, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid media filename %q", filename)
	}
	target := m.Path(filename)
	tempFile := target + tempSuffix

	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.known[filename] = true
	m.mu.Unlock()

	return target, nil
}

// SetTimes rewrites both access and modification time of filename
func (m *Manager) SetTimes(filename string, t time.Time) error {
	if err := os.Chtimes(m.Path(filename), t, t); err != nil {
		return fmt.Errorf("failed to set file times: %w", err)
	}
	return nil
}

// ListByModTime lists stored files, most recently modified first. Equal
// modification times are ordered by name so the listing is stable.
func (m *Manager) ListByModTime() ([]FileInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(m.dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	SortByRecency(files)
	return files, nil
}

// SortByRecency orders files by ModTime descending, then by name
func SortByRecency(files []FileInfo) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
}

// Partition splits a recency-sorted listing into the first keep files and
// the remainder. A negative keep is treated as zero.
func Partition(sorted []FileInfo, keep int) (retained, evicted []FileInfo) {
	if keep < 0 {
		keep = 0
	}
	if keep >= len(sorted) {
		return sorted, nil
	}
	return sorted[:keep], sorted[keep:]
}

// Remove deletes filename from the directory
func (m *Manager) Remove(filename string) error {
	if err := os.Remove(m.Path(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", filename, err)
	}
	m.mu.Lock()
	delete(m.known, filename)
	m.mu.Unlock()
	return nil
}

// Path returns the full path of filename inside the managed directory
func (m *Manager) Path(filename string) string {
	return filepath.Join(m.dir, filename)
}

// Dir returns the managed directory
func (m *Manager) Dir() string {
	return m.dir
}

// Count returns the number of files known to be stored
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.known)
}

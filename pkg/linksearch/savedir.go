package linksearch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var unsafeNameChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", "\n", " ", "\r", " ", "\t", " ",
)

// SanitizeName makes s usable as a single path element
func SanitizeName(s string) string {
	s = strings.TrimSpace(unsafeNameChars.Replace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

// SaveDir resolves {base}/{author}({authorID})/{work}({workID}). When a
// directory for authorID already exists under base (the author may have been
// renamed since), it is reused instead of creating a second one.
func SaveDir(base, author, authorID, work, workID string) (string, error) {
	authorDir := fmt.Sprintf("%s(%s)", SanitizeName(author), SanitizeName(authorID))
	suffix := "(" + SanitizeName(authorID) + ")"

	entries, err := os.ReadDir(base)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to list %s: %w", base, err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			authorDir = e.Name()
			break
		}
	}

	workDir := fmt.Sprintf("%s(%s)", SanitizeName(work), SanitizeName(workID))
	return filepath.Join(base, authorDir, workDir), nil
}

// DirExists reports whether path is an existing directory
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// WriteFileAtomic writes data to path through a temp file in the same directory
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// File is one asset of a work
type File struct {
	Name string
	Data []byte
}

// CommitDir writes files into a staging directory and renames it to dir, so
// dir only ever appears complete. Fetchers treat an existing dir as done.
func CommitDir(dir string, files []File) error {
	if DirExists(dir) {
		return nil
	}
	staging := dir + ".part"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	for _, f := range files {
		if err := os.WriteFile(filepath.Join(staging, SanitizeName(f.Name)), f.Data, 0644); err != nil {
			os.RemoveAll(staging)
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("failed to finalize %s: %w", dir, err)
	}
	return nil
}

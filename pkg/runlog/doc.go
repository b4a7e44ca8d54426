// Package runlog keeps the record of the last pipeline run per collection.
//
// Records are JSON files written atomically (temp file, fsync, rename) so a
// crash mid-write never leaves a truncated record behind. They are stored in
// the directory given to NewManager, or by default in:
//   - Linux: ~/.local/share/mediakeeper/runs/
//   - macOS: ~/Library/Application Support/mediakeeper/runs/
//   - Windows: %APPDATA%/mediakeeper/runs/
package runlog

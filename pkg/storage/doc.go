// Package storage manages a local media directory.
//
// A file's presence under its derived name is the proof that its URL was
// already acquired, so Exists is the only dedup check the pipeline needs.
// Writes go through a temporary file and rename. Retention works on the
// directory listing alone:
//
//	files, err := manager.ListByModTime()
//	if err != nil {
//	    return err
//	}
//	kept, evicted := storage.Partition(files, holdingCount)
//	for _, f := range evicted {
//	    _ = manager.Remove(f.Name)
//	}
package storage

package opencode

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const partExtension = ".json"

// ErrDirectoryNotFound is returned when the configured storage root does not
// exist. It is a hard failure at construction time, never a silent skip.
var ErrDirectoryNotFound = errors.New("opencode: storage directory not found")

// FileRecord pairs a part file's path with its last-modified time. Records
// are produced fresh on every scan and never persisted.
type FileRecord struct {
	Path       string
	ModifiedAt time.Time
}

// Scanner walks an OpenCode storage tree for part files. It reads filesystem
// metadata only; parsing is the parser's job.
type Scanner struct {
	root string
}

// NewScanner validates the storage root and returns a scanner bound to it.
// The root is always injected by the caller; default-path policy lives in
// the config package.
func NewScanner(root string) (*Scanner, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
	}
	return &Scanner{root: root}, nil
}

// Root returns the storage root this scanner is bound to.
func (s *Scanner) Root() string {
	return s.root
}

// Scan returns the paths of all part files under the root.
func (s *Scanner) Scan() ([]string, error) {
	return s.listPartFiles()
}

// ScanWithMetadata returns every part file with its modification time. The
// tree walk is sequential; the per-file stat calls fan out across workers.
func (s *Scanner) ScanWithMetadata() ([]FileRecord, error) {
	paths, err := s.listPartFiles()
	if err != nil {
		return nil, err
	}
	return statParallel(paths, nil), nil
}

// ScanModifiedSince is ScanWithMetadata restricted to files whose
// modification time is at or after cutoff. The filter runs inside the stat
// pass so discarded files never materialize as records.
func (s *Scanner) ScanModifiedSince(cutoff time.Time) ([]FileRecord, error) {
	paths, err := s.listPartFiles()
	if err != nil {
		return nil, err
	}
	return statParallel(paths, func(mod time.Time) bool {
		return !mod.Before(cutoff)
	}), nil
}

func (s *Scanner) listPartFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return fmt.Errorf("%w: %s", ErrDirectoryNotFound, s.root)
			}
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() && filepath.Ext(path) == partExtension {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// statParallel stats each path on a small worker pool and keeps the records
// accepted by keep (nil keeps everything). Files that cannot be stat'ed are
// dropped.
func statParallel(paths []string, keep func(time.Time) bool) []FileRecord {
	if len(paths) == 0 {
		return nil
	}

	workers := runtime.NumCPU()
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan string)
	results := make(chan FileRecord, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				mod := info.ModTime()
				if keep != nil && !keep(mod) {
					continue
				}
				results <- FileRecord{Path: path, ModifiedAt: mod}
			}
		}()
	}

	go func() {
		for _, path := range paths {
			jobs <- path
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	records := make([]FileRecord, 0, len(paths))
	for rec := range results {
		records = append(records, rec)
	}
	return records
}

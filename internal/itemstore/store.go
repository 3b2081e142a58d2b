package itemstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"refinery/internal/fileutil"
	"refinery/internal/services"
)

// Store reads and writes batch files. Writes into the same directory are
// serialized; reads take no locks because every write is an atomic rename.
type Store struct {
	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{dirLocks: make(map[string]*sync.Mutex)}
}

// DirStats summarizes one stage directory.
type DirStats struct {
	Batches int
	Items   int
}

// ListBatches returns the batch file names in dir ordered by batch id, with
// names that are not batch ids sorted after them by name. A missing
// directory is a NotFound error.
func (s *Store) ListBatches(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.KindNotFound, "list batches", dir, err)
		}
		return nil, fmt.Errorf("list batches %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || fileutil.IsTempName(name) || !strings.HasSuffix(name, batchSuffix) {
			continue
		}
		names = append(names, name)
	}
	sortBatchNames(names)
	return names, nil
}

func sortBatchNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, aok := ParseBatchID(names[i])
		b, bok := ParseBatchID(names[j])
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return names[i] < names[j]
		}
	})
}

// LoadDir reads every batch file in dir in ListBatches order and concatenates
// their items. A missing directory, or one without batch files, is NotFound.
func (s *Store) LoadDir(dir string) ([]WorkItem, error) {
	names, err := s.ListBatches(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, services.New(services.KindNotFound, "load batches", "no batch files in "+dir)
	}
	var items []WorkItem
	for _, name := range names {
		batch, err := s.LoadBatch(dir, name)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

// LoadBatch reads one batch file. Both the single-record and record-sequence
// shapes are accepted and normalized to a slice.
func (s *Store) LoadBatch(dir, filename string) ([]WorkItem, error) {
	path := filepath.Join(dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.KindNotFound, "load batch", path, err)
		}
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	return decodeBatch(path, data)
}

// SaveBatch writes items to dir/filename as an indented JSON array, replacing
// any existing file atomically. dir is created when absent.
func (s *Store) SaveBatch(items []WorkItem, dir, filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	if items == nil {
		items = []WorkItem{}
	}
	data, err := encodeBatch(items)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", filename, err)
	}

	lock := s.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stage directory %s: %w", dir, err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("save batch %s: %w", filepath.Join(dir, filename), err)
	}
	return nil
}

// CountItems sums the records of every batch file in dir without decoding
// their fields. A missing directory counts as zero.
func (s *Store) CountItems(dir string) (int, error) {
	stats, err := s.Stat(dir)
	return stats.Items, err
}

// Stat counts batch files and records in dir. A missing directory is empty.
func (s *Store) Stat(dir string) (DirStats, error) {
	names, err := s.ListBatches(dir)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return DirStats{}, nil
		}
		return DirStats{}, err
	}
	stats := DirStats{Batches: len(names)}
	for _, name := range names {
		n, err := s.countFile(filepath.Join(dir, name))
		if err != nil {
			return DirStats{}, err
		}
		stats.Items += n
	}
	return stats, nil
}

// BatchLen returns the record count of one batch file.
func (s *Store) BatchLen(dir, filename string) (int, error) {
	return s.countFile(filepath.Join(dir, filename))
}

func (s *Store) countFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, services.Wrap(services.KindNotFound, "count batch", path, err)
		}
		return 0, fmt.Errorf("read batch %s: %w", path, err)
	}
	return countRecords(path, data)
}

// Exists reports whether dir/filename is present.
func (s *Store) Exists(dir, filename string) bool {
	info, err := os.Stat(filepath.Join(dir, filename))
	return err == nil && info.Mode().IsRegular()
}

// MaxBatchID returns the highest batch id found across dirs, or zero.
// Missing directories are skipped.
func (s *Store) MaxBatchID(dirs ...string) (int, error) {
	highest := 0
	for _, dir := range dirs {
		names, err := s.ListBatches(dir)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			return 0, err
		}
		for _, name := range names {
			if id, ok := ParseBatchID(name); ok && id > highest {
				highest = id
			}
		}
	}
	return highest, nil
}

func (s *Store) dirLock(dir string) *sync.Mutex {
	key := filepath.Clean(dir)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirLocks == nil {
		s.dirLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := s.dirLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.dirLocks[key] = lock
	}
	return lock
}

func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return services.New(services.KindFatal, "save batch", fmt.Sprintf("invalid batch filename %q", name))
	}
	if fileutil.IsTempName(name) {
		return services.New(services.KindFatal, "save batch", fmt.Sprintf("batch filename %q uses the temp prefix", name))
	}
	return nil
}

func encodeBatch(items []WorkItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

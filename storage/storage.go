package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gozephyr/pcache/errors"
)

const (
	dbSuffix      = ".db"
	journalSuffix = ".journal"
)

// Storage manages the file groups of a cache collection inside one flat
// directory. Every cache owns a pair <base>.db and <base>.journal, where
// base comes from BaseNameFromCacheID. Deleting files still open elsewhere
// is safe under POSIX unlink semantics; open handles keep working until
// closed.
type Storage struct {
	dir  string
	trim TrimStrategy
}

// FileGroup is the opened file pair backing one cache.
type FileGroup struct {
	BaseName string
	DB       *os.File
	Journal  *os.File
}

// Close releases both handles
func (g *FileGroup) Close() error {
	err := g.DB.Close()
	if jerr := g.Journal.Close(); err == nil {
		err = jerr
	}
	return err
}

// New creates a Storage rooted at dir, creating the directory if needed.
// A nil strategy defaults to OldestFirst.
func New(dir string, strategy TrimStrategy) (*Storage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.Wrap("New", "", "", fmt.Errorf("storage directory is empty"))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap("New", "", "", fmt.Errorf("create storage directory: %w", err))
	}
	if strategy == nil {
		strategy = OldestFirst{}
	}
	return &Storage{dir: dir, trim: strategy}, nil
}

// Dir returns the storage root
func (s *Storage) Dir() string {
	return s.dir
}

// Strategy returns the configured trim strategy
func (s *Storage) Strategy() TrimStrategy {
	return s.trim
}

// DBPath returns the database file path for a base name
func (s *Storage) DBPath(baseName string) string {
	return filepath.Join(s.dir, baseName+dbSuffix)
}

// JournalPath returns the journal file path for a base name
func (s *Storage) JournalPath(baseName string) string {
	return filepath.Join(s.dir, baseName+journalSuffix)
}

// Open opens or creates the file group for baseName with read-write
// handles.
func (s *Storage) Open(baseName string) (*FileGroup, error) {
	db, err := os.OpenFile(s.DBPath(baseName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap("Open", "", baseName, fmt.Errorf("open db file: %w", err))
	}
	journal, err := os.OpenFile(s.JournalPath(baseName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		db.Close()
		return nil, errors.Wrap("Open", "", baseName, fmt.Errorf("open journal file: %w", err))
	}
	return &FileGroup{BaseName: baseName, DB: db, Journal: journal}, nil
}

// DeleteGroup removes the file group for baseName from disk
func (s *Storage) DeleteGroup(baseName string) error {
	var firstErr error
	for _, p := range []string{s.DBPath(baseName), s.JournalPath(baseName)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.Wrap("DeleteGroup", "", baseName, firstErr)
	}
	return nil
}

// Footprint returns the total bytes resident under the storage root
func (s *Storage) Footprint() (int64, error) {
	_, total, err := s.groups()
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Groups lists the file groups currently on disk
func (s *Storage) Groups() ([]GroupInfo, error) {
	groups, _, err := s.groups()
	return groups, err
}

func (s *Storage) groups() ([]GroupInfo, int64, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, 0, errors.Wrap("Groups", "", "", fmt.Errorf("read storage directory: %w", err))
	}

	byBase := make(map[string]*GroupInfo)
	var total int64
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, 0, errors.Wrap("Groups", "", de.Name(), err)
		}

		base := de.Name()
		switch {
		case strings.HasSuffix(base, dbSuffix):
			base = strings.TrimSuffix(base, dbSuffix)
		case strings.HasSuffix(base, journalSuffix):
			base = strings.TrimSuffix(base, journalSuffix)
		}

		g, ok := byBase[base]
		if !ok {
			g = &GroupInfo{BaseName: base}
			byBase[base] = g
		}
		g.Size += info.Size()
		if info.ModTime().After(g.ModTime) {
			g.ModTime = info.ModTime()
		}
		total += info.Size()
	}

	groups := make([]GroupInfo, 0, len(byBase))
	for _, g := range byBase {
		groups = append(groups, *g)
	}
	return groups, total, nil
}

// TrimTo deletes whole file groups, most expendable first per the
// configured strategy, until resident bytes do not exceed target. It
// returns the resulting footprint. Groups still open elsewhere are deleted
// anyway; their handles stay usable until closed.
func (s *Storage) TrimTo(target int64) (int64, error) {
	if target < 0 {
		target = 0
	}
	groups, total, err := s.groups()
	if err != nil {
		return 0, err
	}
	if total <= target {
		return total, nil
	}

	s.trim.Order(groups)
	for _, g := range groups {
		if total <= target {
			break
		}
		if err := s.DeleteGroup(g.BaseName); err != nil {
			return total, err
		}
		total -= g.Size
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}

// DeleteAll removes every file under the storage root
func (s *Storage) DeleteAll() error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap("DeleteAll", "", "", fmt.Errorf("read storage directory: %w", err))
	}
	var firstErr error
	for _, de := range dirEntries {
		if err := os.RemoveAll(filepath.Join(s.dir, de.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.Wrap("DeleteAll", "", "", firstErr)
	}
	return nil
}

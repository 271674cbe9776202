package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"base-scraper/pkg/models"
	"base-scraper/pkg/utils"
)

// BaseStore is the persistence boundary for scraped records. The in-repo
// implementation is a single JSON file; the interface exists so a durable
// backing (database, object store) can be substituted without touching the
// orchestrator.
type BaseStore interface {
	// Load reads the persisted record set. A missing or corrupt store is
	// treated as an empty starting set, never a fatal error.
	Load() (*models.BaseFile, error)
	// Save atomically replaces the persisted record set.
	Save(doc *models.BaseFile) error
	// MergeAndSave performs the full read-merge-write cycle for a batch of
	// newly scraped records. Cycles are serialized internally so two jobs
	// completing concurrently cannot lose each other's records.
	MergeAndSave(newRecords []models.ScrapedRecord) (*models.BaseFile, error)
}

// FileStore persists the record set as one JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex // serializes read-modify-write cycles
	log  *logrus.Entry
}

// NewFileStore creates a FileStore writing to the given path
func NewFileStore(path string, log *logrus.Entry) *FileStore {
	return &FileStore{path: path, log: log}
}

// Load implements BaseStore
func (s *FileStore) Load() (*models.BaseFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debugf("Store file %s does not exist, starting empty", s.path)
			return &models.BaseFile{Bases: []models.ScrapedRecord{}}, nil
		}
		return nil, fmt.Errorf("%w: reading store '%s': %w", utils.ErrFilesystem, s.path, err)
	}

	var doc models.BaseFile
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt store is recoverable: the next save rewrites it whole
		s.log.Warnf("Store file %s is corrupt (%v), starting empty", s.path, err)
		return &models.BaseFile{Bases: []models.ScrapedRecord{}}, nil
	}
	if doc.Bases == nil {
		doc.Bases = []models.ScrapedRecord{}
	}
	return &doc, nil
}

// Save implements BaseStore. The document is written to a temp file in the
// same directory and renamed into place so a reader never observes a
// partially written store.
func (s *FileStore) Save(doc *models.BaseFile) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling store document: %w", utils.ErrParsing, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating store directory '%s': %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp store file: %w", utils.ErrFilesystem, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing temp store file: %w", utils.ErrFilesystem, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing temp store file: %w", utils.ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp store file: %w", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replacing store file '%s': %w", utils.ErrFilesystem, s.path, err)
	}

	s.log.WithFields(logrus.Fields{"path": s.path, "bases": doc.TotalBases}).Info("Store saved")
	return nil
}

// MergeAndSave implements BaseStore
func (s *FileStore) MergeAndSave(newRecords []models.ScrapedRecord) (*models.BaseFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Load()
	if err != nil {
		return nil, err
	}

	merged := Merge(existing.Bases, newRecords)
	doc := &models.BaseFile{
		UpdatedAt:  time.Now().UTC(),
		TotalBases: len(merged),
		Bases:      merged,
	}

	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

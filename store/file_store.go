package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the document in a single JSON file that is read in full
// and rewritten in full on every call.
type FileStore struct {
	path string
	mu   sync.Mutex // serializes read-modify-write cycles within this process
	opts options
}

// NewFileStore opens the document at path, creating it with the initial
// collections when it does not exist yet.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{path: path, opts: buildOptions(opts)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating data file %s", path)
		if err := s.writeLocked(InitialDocument()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Driver implements Store.
func (s *FileStore) Driver() string { return "file" }

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// Read implements Store.
func (s *FileStore) Read(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Write implements Store.
func (s *FileStore) Write(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	err := s.writeLocked(doc)
	s.mu.Unlock()

	if err == nil {
		s.opts.notify()
	}
	return err
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	doc, err := s.readLocked()
	if err == nil {
		err = fn(doc)
	}
	if err == nil {
		err = s.writeLocked(doc)
	}
	s.mu.Unlock()

	if err == nil {
		s.opts.notify()
	}
	return err
}

func (s *FileStore) readLocked() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		log.Printf("Error reading database: %v", err)
		return nil, &StorageReadError{Source: s.path, Err: err}
	}
	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		log.Printf("Error parsing database: %v", err)
		return nil, &StorageReadError{Source: s.path, Err: err}
	}
	return doc, nil
}

// writeLocked replaces the file through a temporary sibling and a rename, so
// readers see either the old document or the new one.
func (s *FileStore) writeLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StorageWriteError{Source: s.path, Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Printf("Error writing database: %v", err)
		return &StorageWriteError{Source: s.path, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		log.Printf("Error writing database: %v", err)
		return &StorageWriteError{Source: s.path, Err: err}
	}
	return nil
}

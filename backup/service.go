// Package backup writes point-in-time snapshots of every table to JSON files
// and restores them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"facc/audit"
)

// Table is one table of a snapshot: its definition and every row.
type Table struct {
	Name   string           `json:"name"`
	Schema string           `json:"schema"`
	Data   []map[string]any `json:"data"`
}

// Snapshotter captures and replaces the contents of a storage substrate.
// Restore must be all-or-nothing: on error the substrate is left as it was.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]Table, error)
	Restore(ctx context.Context, tables []Table) error
}

// Info describes a backup file on disk.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service manages the backup directory.
type Service struct {
	dir          string
	snap         Snapshotter
	recorder     *audit.Recorder
	now          func() time.Time
	afterRestore []func()
}

// Option configures a Service.
type Option func(*Service)

// WithAfterRestore registers fn to run after a successful restore.
func WithAfterRestore(fn func()) Option {
	return func(s *Service) { s.afterRestore = append(s.afterRestore, fn) }
}

// NewService creates a Service storing files in dir.
func NewService(dir string, snap Snapshotter, recorder *audit.Recorder, opts ...Option) (*Service, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	s := &Service{dir: dir, snap: snap, recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the backup directory.
func (s *Service) Dir() string { return s.dir }

// Create snapshots every table into a new file and returns its name.
func (s *Service) Create(ctx context.Context, actor audit.Actor) (string, error) {
	tables, err := s.snap.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	data, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}

	filename, err := s.writeNew(data)
	if err != nil {
		return "", err
	}
	log.Printf("Backup created: %s (%d tables)", filename, len(tables))

	s.recorder.Record(ctx, actor, audit.Event{
		ActionType: audit.ActionCreate,
		EntityType: audit.EntityBackup,
		NewValues:  map[string]string{"filename": filename},
	})
	return filename, nil
}

// writeNew writes data under a fresh timestamped name, adding a counter when
// two backups land on the same millisecond.
func (s *Service) writeNew(data []byte) (string, error) {
	base := FileName(s.now())
	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d.json", strings.TrimSuffix(base, ".json"), i)
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("write backup file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("write backup file: %w", err)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free backup name for %s", base)
}

// List returns every backup file, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	backups := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			log.Printf("Warning: could not stat backup %s: %v", entry.Name(), err)
			continue
		}
		backups = append(backups, Info{
			Filename:  entry.Name(),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].Filename > backups[j].Filename
	})
	return backups, nil
}

// Delete removes a backup file.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, filename string) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{Filename: filename}
		}
		return fmt.Errorf("delete backup: %w", err)
	}
	log.Printf("Backup deleted: %s", filename)

	s.recorder.Record(ctx, actor, audit.Event{
		ActionType: audit.ActionDelete,
		EntityType: audit.EntityBackup,
		OldValues:  map[string]string{"filename": filename},
	})
	return nil
}

// Restore replaces the stored data with the content of a backup file.
func (s *Service) Restore(ctx context.Context, actor audit.Actor, filename string) error {
	tables, err := s.Load(filename)
	if err != nil {
		return err
	}

	if err := s.snap.Restore(ctx, tables); err != nil {
		var corrupt *CorruptError
		if errors.As(err, &corrupt) && corrupt.Filename == "" {
			corrupt.Filename = filename
		}
		return err
	}
	log.Printf("Backup restored: %s", filename)

	for _, fn := range s.afterRestore {
		fn()
	}
	s.recorder.Record(ctx, actor, audit.Event{
		ActionType: audit.ActionRestore,
		EntityType: audit.EntityBackup,
		NewValues:  map[string]string{"filename": filename},
	})
	return nil
}

// Load reads and decodes a backup file without applying it.
func (s *Service) Load(filename string) ([]Table, error) {
	path, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Filename: filename}
		}
		return nil, fmt.Errorf("read backup: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tables []Table
	if err := dec.Decode(&tables); err != nil {
		return nil, &CorruptError{Filename: filename, Reason: "not a valid backup document", Err: err}
	}

	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if t.Name == "" {
			return nil, &CorruptError{Filename: filename, Reason: "table without a name"}
		}
		if seen[t.Name] {
			return nil, &CorruptError{Filename: filename, Table: t.Name, Reason: "table listed twice"}
		}
		seen[t.Name] = true
	}
	return tables, nil
}

func (s *Service) path(filename string) (string, error) {
	if err := ValidateName(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filename), nil
}

// Columns returns the sorted column names of a table's first row and checks
// that every other row carries exactly the same keys. Rows are bound to
// columns by position, so a mismatch would silently shift values.
func Columns(t Table) ([]string, error) {
	if len(t.Data) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(t.Data[0]))
	for k := range t.Data[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	for i, row := range t.Data[1:] {
		if len(row) != len(cols) {
			return nil, &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d has %d columns, expected %d", i+2, len(row), len(cols))}
		}
		for _, c := range cols {
			if _, ok := row[c]; !ok {
				return nil, &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d is missing column %s", i+2, c)}
			}
		}
	}
	return cols, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SQLRow is the layout of every collection table: one row per element, in
// document order. Singleton entries are stored as a single row at pos 0.
type SQLRow struct {
	Pos  int64          `gorm:"column:pos;primaryKey;autoIncrement:false"`
	ID   *int64         `gorm:"column:id"`
	Data datatypes.JSON `gorm:"column:data;not null"`
}

// SQLStore maps the document onto relational tables, one per top-level
// entry. Every call still reads or rewrites the whole document; writes run in
// one transaction.
type SQLStore struct {
	db   *gorm.DB
	mu   sync.Mutex
	opts options
}

// NewSQLStore wraps db, seeding the initial document into an empty database.
func NewSQLStore(ctx context.Context, db *gorm.DB, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{db: db, opts: buildOptions(opts)}

	tables, err := UserTables(db.WithContext(ctx))
	if err != nil {
		return nil, &StorageReadError{Source: s.Driver(), Err: err}
	}
	if len(tables) == 0 {
		log.Printf("Seeding empty %s database with the initial document", s.Driver())
		if err := s.writeLocked(ctx, InitialDocument()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// UserTables lists the tables of db that hold document entries. The
// database's own bookkeeping tables, such as sqlite_sequence, are left out.
func UserTables(db *gorm.DB) ([]string, error) {
	tables, err := db.Migrator().GetTables()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if !IsInternalTable(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// IsInternalTable reports whether name is reserved by the database engine.
func IsInternalTable(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "sqlite_")
}

// Exclusive runs fn on the underlying connection while holding the store
// lock. No Read, Write or Update interleaves with fn, so a pending Update
// cannot write back a document read before fn ran.
func (s *SQLStore) Exclusive(ctx context.Context, fn func(db *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db.WithContext(ctx))
}

// Driver implements Store.
func (s *SQLStore) Driver() string { return s.db.Dialector.Name() }

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Read implements Store.
func (s *SQLStore) Read(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

// Write implements Store.
func (s *SQLStore) Write(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	err := s.writeLocked(ctx, doc)
	s.mu.Unlock()

	if err == nil {
		s.opts.notify()
	}
	return err
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	doc, err := s.readLocked(ctx)
	if err == nil {
		err = fn(doc)
	}
	if err == nil {
		err = s.writeLocked(ctx, doc)
	}
	s.mu.Unlock()

	if err == nil {
		s.opts.notify()
	}
	return err
}

func (s *SQLStore) readLocked(ctx context.Context) (*Document, error) {
	db := s.db.WithContext(ctx)
	tables, err := UserTables(db)
	if err != nil {
		return nil, &StorageReadError{Source: s.Driver(), Err: err}
	}

	doc := NewDocument()
	for _, table := range tables {
		var rows []SQLRow
		if err := db.Table(table).Order("pos").Find(&rows).Error; err != nil {
			return nil, &StorageReadError{Source: table, Err: err}
		}

		if IsSingleton(table) {
			if len(rows) > 0 {
				doc.SetRaw(table, json.RawMessage(rows[0].Data))
			}
			continue
		}

		items := make([]json.RawMessage, 0, len(rows))
		for _, row := range rows {
			items = append(items, json.RawMessage(row.Data))
		}
		if err := doc.SetItems(table, items); err != nil {
			return nil, &StorageReadError{Source: table, Err: err}
		}
	}
	return doc, nil
}

func (s *SQLStore) writeLocked(ctx context.Context, doc *Document) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := UserTables(tx)
		if err != nil {
			return err
		}
		for _, table := range existing {
			if !doc.Has(table) {
				if err := tx.Exec("DROP TABLE " + pq.QuoteIdentifier(table)).Error; err != nil {
					return fmt.Errorf("drop %s: %w", table, err)
				}
			}
		}

		for _, name := range doc.Names() {
			rows, err := rowsFor(doc, name)
			if err != nil {
				return err
			}
			if err := tx.Table(name).AutoMigrate(&SQLRow{}); err != nil {
				return fmt.Errorf("migrate %s: %w", name, err)
			}
			if err := tx.Exec("DELETE FROM " + pq.QuoteIdentifier(name)).Error; err != nil {
				return fmt.Errorf("clear %s: %w", name, err)
			}
			if len(rows) == 0 {
				continue
			}
			if err := tx.Table(name).CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("insert %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Error writing database: %v", err)
		return &StorageWriteError{Source: s.Driver(), Err: err}
	}
	return nil
}

func rowsFor(doc *Document, name string) ([]SQLRow, error) {
	raw := doc.Raw(name)
	if isNull(raw) {
		return nil, nil
	}
	if IsSingleton(name) {
		return []SQLRow{{Pos: 0, Data: datatypes.JSON(raw)}}, nil
	}

	items, err := doc.Items(name)
	if err != nil {
		return nil, err
	}
	rows := make([]SQLRow, 0, len(items))
	for i, item := range items {
		row := SQLRow{Pos: int64(i), Data: datatypes.JSON(item)}
		if id := idOf(item); id != 0 {
			row.ID = &id
		}
		rows = append(rows, row)
	}
	return rows, nil
}

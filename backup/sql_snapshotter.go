package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"facc/store"
)

// SQLSnapshotter backs up every table of the database behind a SQLStore.
// Both directions hold the store lock, so store writes never straddle a
// snapshot or a restore.
type SQLSnapshotter struct {
	store *store.SQLStore
}

// NewSQLSnapshotter creates a snapshotter over the tables of s.
func NewSQLSnapshotter(s *store.SQLStore) *SQLSnapshotter {
	return &SQLSnapshotter{store: s}
}

// transaction runs fn in one transaction with the store locked.
func (s *SQLSnapshotter) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.store.Exclusive(ctx, func(db *gorm.DB) error {
		return db.Transaction(fn)
	})
}

// Snapshot implements Snapshotter. Tables are read inside one transaction so
// the snapshot is consistent.
func (s *SQLSnapshotter) Snapshot(ctx context.Context) ([]Table, error) {
	var tables []Table
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		names, err := store.UserTables(tx)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		sort.Strings(names)

		for _, name := range names {
			schema, err := schemaOf(tx, name)
			if err != nil {
				return err
			}
			var rows []map[string]any
			if err := tx.Table(name).Find(&rows).Error; err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			for _, row := range rows {
				for k, v := range row {
					row[k] = normalize(v)
				}
			}
			if rows == nil {
				rows = []map[string]any{}
			}
			tables = append(tables, Table{Name: name, Schema: schema, Data: rows})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func schemaOf(tx *gorm.DB, name string) (string, error) {
	if tx.Dialector.Name() == "sqlite" {
		var schema string
		err := tx.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&schema).Error
		if err != nil {
			return "", fmt.Errorf("schema of %s: %w", name, err)
		}
		return schema, nil
	}

	cols, err := tx.Migrator().ColumnTypes(name)
	if err != nil {
		return "", fmt.Errorf("columns of %s: %w", name, err)
	}
	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		def := pq.QuoteIdentifier(col.Name()) + " " + col.DatabaseTypeName()
		if pk, ok := col.PrimaryKey(); ok && pk {
			def += " PRIMARY KEY"
		} else if nullable, ok := col.Nullable(); ok && !nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pq.QuoteIdentifier(name), strings.Join(defs, ", ")), nil
}

// normalize turns driver values into something that encodes to JSON and
// binds back unchanged.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return v
	}
}

// Restore implements Snapshotter. Every existing table is dropped and the
// backup's tables are recreated and filled in a single transaction, so a
// failure leaves the database as it was.
func (s *SQLSnapshotter) Restore(ctx context.Context, tables []Table) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		existing, err := store.UserTables(tx)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		for _, name := range existing {
			if err := tx.Exec("DROP TABLE " + pq.QuoteIdentifier(name)).Error; err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
		}

		for _, t := range tables {
			// Engine tables are rebuilt by the engine itself
			if store.IsInternalTable(t.Name) {
				continue
			}
			if err := restoreTable(tx, t); err != nil {
				return err
			}
		}
		for _, t := range tables {
			if store.IsInternalTable(t.Name) {
				continue
			}
			if err := checkLayout(tx, t.Name); err != nil {
				return err
			}
		}
		return nil
	})
	return classify(err)
}

// checkLayout makes sure a restored table can be read back by the SQL store.
func checkLayout(tx *gorm.DB, name string) error {
	m := tx.Migrator()
	for _, col := range []string{"pos", "data"} {
		if !m.HasColumn(name, col) {
			return &CorruptError{Table: name, Reason: fmt.Sprintf("table has no %s column", col)}
		}
	}
	return nil
}

func restoreTable(tx *gorm.DB, t Table) error {
	switch t.Schema {
	case schemaCollection, schemaObject:
		return restoreDocumentTable(tx, t)
	case schemaValue:
		return restoreValueTable(tx, t)
	}

	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(t.Schema)), "CREATE TABLE") {
		return &CorruptError{Table: t.Name, Reason: "schema is not a CREATE TABLE statement"}
	}
	if err := tx.Exec(t.Schema).Error; err != nil {
		return &CorruptError{Table: t.Name, Reason: "schema rejected", Err: err}
	}

	cols, err := Columns(t)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(t.Name), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	for i, row := range t.Data {
		args := make([]any, len(cols))
		for j, c := range cols {
			args[j] = bindValue(row[c])
		}
		if err := tx.Exec(stmt, args...).Error; err != nil {
			return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d rejected", i+1), Err: err}
		}
	}
	return nil
}

// restoreDocumentTable loads a table exported from the flat-file store into
// the pos/id/data layout the SQL store reads.
func restoreDocumentTable(tx *gorm.DB, t Table) error {
	if err := tx.Table(t.Name).AutoMigrate(&store.SQLRow{}); err != nil {
		return fmt.Errorf("migrate %s: %w", t.Name, err)
	}
	if t.Schema == schemaObject && len(t.Data) != 1 {
		return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("object table has %d rows", len(t.Data))}
	}

	rows := make([]store.SQLRow, 0, len(t.Data))
	for i, item := range t.Data {
		raw, err := json.Marshal(item)
		if err != nil {
			return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d", i+1), Err: err}
		}
		row := store.SQLRow{Pos: int64(i), Data: datatypes.JSON(raw)}
		if id, ok := int64Of(item["id"]); ok && t.Schema == schemaCollection {
			row.ID = &id
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Table(t.Name).CreateInBatches(rows, 100).Error
}

// restoreValueTable stores an entry kept whole by the document snapshotter.
// Arrays become one row per element and null an empty table. A scalar has no
// row layout in the SQL store and is rejected.
func restoreValueTable(tx *gorm.DB, t Table) error {
	raw, err := valueOf(t)
	if err != nil {
		return err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return &CorruptError{Table: t.Name, Reason: "scalar entry cannot be stored as a table", Err: err}
	}

	if err := tx.Table(t.Name).AutoMigrate(&store.SQLRow{}); err != nil {
		return fmt.Errorf("migrate %s: %w", t.Name, err)
	}
	if len(items) == 0 {
		return nil
	}
	rows := make([]store.SQLRow, 0, len(items))
	for i, item := range items {
		rows = append(rows, store.SQLRow{Pos: int64(i), Data: datatypes.JSON(item)})
	}
	return tx.Table(t.Name).CreateInBatches(rows, 100).Error
}

func bindValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return v
	}
}

func int64Of(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case float64:
		return int64(x), x == float64(int64(x))
	case int64:
		return x, true
	}
	return 0, false
}

// classify reports sqlite constraint and type failures as a corrupt backup
// rather than a storage fault.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var corrupt *CorruptError
	if errors.As(err, &corrupt) {
		return corrupt
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrError, sqlite3.ErrRange:
			return &CorruptError{Reason: "rejected by database", Err: err}
		}
	}
	return err
}

package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"facc/store"
)

// Schemas of tables exported from the flat-file document. Entries that are
// neither an object nor an array of objects are kept whole as the single
// row {"value": <entry>}.
const (
	schemaCollection = "collection"
	schemaObject     = "object"
	schemaValue      = "value"
)

// DocumentSnapshotter backs up a store by treating each top-level entry of
// the document as a table.
type DocumentSnapshotter struct {
	store store.Store
}

// NewDocumentSnapshotter creates a snapshotter over s.
func NewDocumentSnapshotter(s store.Store) *DocumentSnapshotter {
	return &DocumentSnapshotter{store: s}
}

// Snapshot implements Snapshotter.
func (d *DocumentSnapshotter) Snapshot(ctx context.Context) ([]Table, error) {
	doc, err := d.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(doc.Names()))
	for _, name := range doc.Names() {
		t, err := snapshotEntry(name, doc.Raw(name))
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func snapshotEntry(name string, raw json.RawMessage) (Table, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		obj, err := decodeRow(raw)
		if err != nil {
			return Table{}, fmt.Errorf("snapshot %s: %w", name, err)
		}
		return Table{Name: name, Schema: schemaObject, Data: []map[string]any{obj}}, nil
	}
	if rows, ok := objectRows(raw); ok {
		return Table{Name: name, Schema: schemaCollection, Data: rows}, nil
	}

	value := json.RawMessage("null")
	if len(raw) > 0 {
		if !json.Valid(raw) {
			return Table{}, fmt.Errorf("snapshot %s: entry is not valid JSON", name)
		}
		value = append(json.RawMessage(nil), raw...)
	}
	return Table{Name: name, Schema: schemaValue, Data: []map[string]any{{"value": value}}}, nil
}

// objectRows decodes raw when it is an array whose elements are all objects.
func objectRows(raw []byte) ([]map[string]any, bool) {
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, err := decodeRow(item)
		if err != nil {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

func decodeRow(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("element is not an object")
	}
	return row, nil
}

// Restore implements Snapshotter. The new document is built in memory and
// written once, so a bad table leaves the store untouched.
func (d *DocumentSnapshotter) Restore(ctx context.Context, tables []Table) error {
	doc := store.NewDocument()
	for _, t := range tables {
		if err := restoreEntry(doc, t); err != nil {
			return err
		}
	}
	return d.store.Write(ctx, doc)
}

func restoreEntry(doc *store.Document, t Table) error {
	switch t.Schema {
	case schemaObject:
		if len(t.Data) != 1 {
			return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("object table has %d rows", len(t.Data))}
		}
		raw, err := json.Marshal(t.Data[0])
		if err != nil {
			return &CorruptError{Table: t.Name, Reason: "unencodable row", Err: err}
		}
		doc.SetRaw(t.Name, raw)
		return nil

	case schemaValue:
		raw, err := valueOf(t)
		if err != nil {
			return err
		}
		doc.SetRaw(t.Name, raw)
		return nil

	case schemaCollection:
		items := make([]json.RawMessage, 0, len(t.Data))
		for i, row := range t.Data {
			raw, err := json.Marshal(row)
			if err != nil {
				return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d unencodable", i+1), Err: err}
			}
			items = append(items, raw)
		}
		return doc.SetItems(t.Name, items)
	}

	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(t.Schema)), "CREATE TABLE") {
		return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("unknown schema %q", t.Schema)}
	}
	return restoreSQLLayout(doc, t)
}

// valueOf returns the entry kept whole in a value table.
func valueOf(t Table) (json.RawMessage, error) {
	if len(t.Data) != 1 {
		return nil, &CorruptError{Table: t.Name, Reason: fmt.Sprintf("value table has %d rows", len(t.Data))}
	}
	v, ok := t.Data[0]["value"]
	if !ok {
		return nil, &CorruptError{Table: t.Name, Reason: "value table has no value column"}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &CorruptError{Table: t.Name, Reason: "unencodable value", Err: err}
	}
	return raw, nil
}

// restoreSQLLayout accepts a table exported by the SQL store, whose rows
// carry the element JSON in a data column ordered by pos.
func restoreSQLLayout(doc *store.Document, t Table) error {
	if _, err := Columns(t); err != nil {
		return err
	}
	if len(t.Data) > 0 {
		if _, ok := t.Data[0]["data"]; !ok {
			return &CorruptError{Table: t.Name, Reason: "table has no data column"}
		}
	}

	rows := append([]map[string]any(nil), t.Data...)
	sort.SliceStable(rows, func(i, j int) bool {
		pi, _ := int64Of(rows[i]["pos"])
		pj, _ := int64Of(rows[j]["pos"])
		return pi < pj
	})

	items := make([]json.RawMessage, 0, len(rows))
	for i, row := range rows {
		var raw json.RawMessage
		switch v := row["data"].(type) {
		case string:
			raw = json.RawMessage(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d unencodable", i+1), Err: err}
			}
			raw = b
		}
		if !json.Valid(raw) {
			return &CorruptError{Table: t.Name, Reason: fmt.Sprintf("row %d data is not JSON", i+1)}
		}
		items = append(items, raw)
	}

	if store.IsSingleton(t.Name) {
		if len(items) > 0 {
			doc.SetRaw(t.Name, items[0])
		}
		return nil
	}
	return doc.SetItems(t.Name, items)
}

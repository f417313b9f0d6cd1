// Package store persists the application's single JSON document, either as a
// flat file or mapped onto relational tables.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Top-level collections of the document.
const (
	Users           = "users"
	Requisitions    = "requisitions"
	PaymentRequests = "payment_requests"
	Records         = "records"
	Providers       = "providers"
	ProgramModels   = "program_models"
	Communities     = "communities"
	AccountCodes    = "account_codes"
	AccountChart    = "account_chart"
	AuditLogs       = "audit_logs"
	Notifications   = "notifications"
	CompanySettings = "company_settings"
	Sequences       = "sequences"
)

// TimestampLayout matches the millisecond ISO-8601 form the records were
// always stamped with.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way created_at/updated_at values are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// IsSingleton reports whether the named top-level entry is an object rather
// than an array of records.
func IsSingleton(name string) bool {
	return name == CompanySettings || name == Sequences
}

// Document is the whole database. Entries are kept as raw JSON so that
// collections no handler knows about survive a read/write cycle untouched.
type Document struct {
	entries map[string]json.RawMessage
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{entries: make(map[string]json.RawMessage)}
}

// InitialDocument returns the document a fresh installation starts from.
func InitialDocument() *Document {
	d := NewDocument()
	for _, name := range []string{
		Users, Requisitions, PaymentRequests, Records, Providers, ProgramModels,
		Communities, AccountCodes, AccountChart, AuditLogs, Notifications,
	} {
		d.entries[name] = json.RawMessage("[]")
	}
	d.entries[CompanySettings] = json.RawMessage(`{"name":"Federación de Asociaciones Comunitarias del Carchi","ruc":"0491506385001"}`)
	d.entries[Sequences] = json.RawMessage("{}")
	return d
}

// Names returns the top-level entry names in sorted order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the document carries the named entry.
func (d *Document) Has(name string) bool {
	_, ok := d.entries[name]
	return ok
}

// Raw returns the raw JSON of an entry, or nil.
func (d *Document) Raw(name string) json.RawMessage {
	return d.entries[name]
}

// SetRaw replaces an entry with raw JSON.
func (d *Document) SetRaw(name string, raw json.RawMessage) {
	d.entries[name] = append(json.RawMessage(nil), raw...)
}

// Delete removes an entry.
func (d *Document) Delete(name string) {
	delete(d.entries, name)
}

// Items returns the elements of an array entry. A missing entry is an empty
// collection.
func (d *Document) Items(name string) ([]json.RawMessage, error) {
	raw, ok := d.entries[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("collection %s is not an array: %w", name, err)
	}
	return items, nil
}

// SetItems replaces an array entry.
func (d *Document) SetItems(name string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", name, err)
	}
	d.entries[name] = raw
	return nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := NewDocument()
	for name, raw := range d.entries {
		c.SetRaw(name, raw)
	}
	return c
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.entries)
}

// UnmarshalJSON implements json.Unmarshaler. The top level must be an object.
func (d *Document) UnmarshalJSON(data []byte) error {
	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	if entries == nil {
		return fmt.Errorf("document must be a JSON object")
	}
	d.entries = entries
	return nil
}

// NextID reserves the next id of a collection. Ids come from a per-collection
// sequence kept in the document, so a deleted record's id is never handed
// out again.
func (d *Document) NextID(name string) (int64, error) {
	seqs := map[string]int64{}
	if raw, ok := d.entries[Sequences]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &seqs); err != nil {
			return 0, fmt.Errorf("decode sequences: %w", err)
		}
	}

	last := seqs[name]
	items, err := d.Items(name)
	if err != nil {
		return 0, err
	}
	for _, raw := range items {
		if id := idOf(raw); id > last {
			last = id
		}
	}

	next := last + 1
	seqs[name] = next
	raw, err := json.Marshal(seqs)
	if err != nil {
		return 0, err
	}
	d.entries[Sequences] = raw
	return next, nil
}

func idOf(raw json.RawMessage) int64 {
	var item struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return 0
	}
	return item.ID
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

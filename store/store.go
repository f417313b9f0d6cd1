package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store reads and rewrites the whole document. Update runs fn between a read
// and a write while holding the store's lock, so concurrent mutations in this
// process are serialized; other processes writing the same file are not
// coordinated with.
type Store interface {
	Read(ctx context.Context) (*Document, error)
	Write(ctx context.Context, doc *Document) error
	Update(ctx context.Context, fn func(doc *Document) error) error
	Driver() string
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	onChange []func()
}

// WithOnChange registers fn to run after every successful write.
func WithOnChange(fn func()) Option {
	return func(o *options) { o.onChange = append(o.onChange, fn) }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) notify() {
	for _, fn := range o.onChange {
		fn()
	}
}

// Model carries the fields every stored record has.
type Model struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// GetID returns the record id.
func (m *Model) GetID() int64 { return m.ID }

// Stamp assigns the id and creation time of a new record.
func (m *Model) Stamp(id int64, now time.Time) {
	m.ID = id
	m.CreatedAt = Timestamp(now)
}

// Touch sets the update time.
func (m *Model) Touch(now time.Time) {
	m.UpdatedAt = Timestamp(now)
}

// Record is a storable element of a collection.
type Record interface {
	GetID() int64
	Stamp(id int64, now time.Time)
}

// Decode unmarshals every element of a collection into T.
func Decode[T any](doc *Document, name string) ([]T, error) {
	items, err := doc.Items(name)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", name, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FindByID returns the record with the given id.
func FindByID[T any](doc *Document, name string, id int64) (T, error) {
	var zero T
	items, err := doc.Items(name)
	if err != nil {
		return zero, err
	}
	for _, raw := range items {
		if idOf(raw) != id {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return zero, fmt.Errorf("decode %s %d: %w", name, id, err)
		}
		return v, nil
	}
	return zero, ErrNotFound
}

// Insert stamps rec with the next id and appends it.
func Insert(doc *Document, name string, rec Record, now time.Time) error {
	id, err := doc.NextID(name)
	if err != nil {
		return err
	}
	rec.Stamp(id, now)

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	items, err := doc.Items(name)
	if err != nil {
		return err
	}
	return doc.SetItems(name, append(items, raw))
}

// Replace overwrites the record carrying rec's id.
func Replace(doc *Document, name string, rec Record) error {
	items, err := doc.Items(name)
	if err != nil {
		return err
	}
	for i, raw := range items {
		if idOf(raw) != rec.GetID() {
			continue
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		items[i] = encoded
		return doc.SetItems(name, items)
	}
	return ErrNotFound
}

// Remove deletes the record with the given id.
func Remove(doc *Document, name string, id int64) error {
	items, err := doc.Items(name)
	if err != nil {
		return err
	}
	for i, raw := range items {
		if idOf(raw) == id {
			return doc.SetItems(name, append(items[:i], items[i+1:]...))
		}
	}
	return ErrNotFound
}

// DecodeObject unmarshals a singleton entry into v. A missing entry leaves v
// unchanged.
func DecodeObject(doc *Document, name string, v any) error {
	raw := doc.Raw(name)
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// EncodeObject replaces a singleton entry.
func EncodeObject(doc *Document, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	doc.SetRaw(name, raw)
	return nil
}

// Collection reads the document and returns one collection.
func Collection(ctx context.Context, s Store, name string) ([]json.RawMessage, error) {
	doc, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Items(name)
}

// AddToCollection appends items to a collection, giving each a fresh id and
// a creation timestamp, and returns the stored items.
func AddToCollection(ctx context.Context, s Store, name string, items []map[string]any) ([]map[string]any, error) {
	now := time.Now()
	created := make([]map[string]any, 0, len(items))
	err := s.Update(ctx, func(doc *Document) error {
		existing, err := doc.Items(name)
		if err != nil {
			return err
		}
		for _, item := range items {
			id, err := doc.NextID(name)
			if err != nil {
				return err
			}
			rec := make(map[string]any, len(item)+2)
			for k, v := range item {
				rec[k] = v
			}
			rec["id"] = id
			rec["created_at"] = Timestamp(now)

			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %s item: %w", name, err)
			}
			existing = append(existing, raw)
			created = append(created, rec)
		}
		return doc.SetItems(name, existing)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Append is Insert wrapped in its own update.
func Append(ctx context.Context, s Store, name string, rec Record) error {
	return s.Update(ctx, func(doc *Document) error {
		return Insert(doc, name, rec, time.Now())
	})
}

// UpdateByID decodes the record with the given id, lets fn change it and
// stores it back.
func UpdateByID[T any, PT interface {
	*T
	Record
}](ctx context.Context, s Store, name string, id int64, fn func(PT) error) (PT, error) {
	var result PT
	err := s.Update(ctx, func(doc *Document) error {
		rec, err := FindByID[T](doc, name, id)
		if err != nil {
			return err
		}
		p := PT(&rec)
		if err := fn(p); err != nil {
			return err
		}
		result = p
		return Replace(doc, name, p)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByID removes the record with the given id in its own update.
func DeleteByID(ctx context.Context, s Store, name string, id int64) error {
	return s.Update(ctx, func(doc *Document) error {
		return Remove(doc, name, id)
	})
}

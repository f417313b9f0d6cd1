package audit

import (
	"context"
	"sort"
	"time"

	"facc/store"
)

// Default page size when the caller does not give one.
const DefaultLimit = 50

// Filter narrows an audit query. Zero values mean "no filter on this field".
// Dates are compared against created_at as raw strings, inclusive on both
// ends, so "2024-01-02" as an end date excludes entries later that day.
type Filter struct {
	StartDate  string
	EndDate    string
	UserID     int64
	ActionType string
	EntityType string
	EntityID   int64
}

// LogView is an entry joined with its actor. The actor fields are empty when
// the user no longer exists.
type LogView struct {
	Entry
	UserName     string `json:"user_name"`
	UserLastname string `json:"user_lastname"`
	UserEmail    string `json:"user_email"`
}

// Pagination summarizes a page.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// Page is one page of a query result.
type Page struct {
	Logs       []LogView  `json:"logs"`
	Pagination Pagination `json:"pagination"`
}

type actor struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
}

// Query answers audit searches from a full read of the store.
type Query struct {
	store store.Store
}

// NewQuery creates a Query reading from s.
func NewQuery(s store.Store) *Query {
	return &Query{store: s}
}

// Find returns the requested page of entries matching f, newest first.
// page and limit must be positive.
func (q *Query) Find(ctx context.Context, f Filter, page, limit int) (*Page, error) {
	doc, err := q.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := store.Decode[Entry](doc, store.AuditLogs)
	if err != nil {
		return nil, err
	}
	users, err := store.Decode[actor](doc, store.Users)
	if err != nil {
		return nil, err
	}

	matched := Apply(entries, f)
	SortNewestFirst(matched)
	return paginate(matched, users, page, limit), nil
}

// Apply keeps the entries that satisfy every set field of f.
func Apply(entries []Entry, f Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.StartDate != "" && e.CreatedAt < f.StartDate {
			continue
		}
		if f.EndDate != "" && e.CreatedAt > f.EndDate {
			continue
		}
		if f.UserID != 0 && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		if f.ActionType != "" && e.ActionType != f.ActionType {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != 0 && (e.EntityID == nil || *e.EntityID != f.EntityID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SortNewestFirst orders entries by creation time descending, breaking ties
// by id descending. Stamps that do not parse come after every parsed one and
// are ordered by their text.
func SortNewestFirst(entries []Entry) {
	keys := make([]createdKey, len(entries))
	for i, e := range entries {
		keys[i] = keyOf(e)
	}
	sort.Stable(byNewest{entries: entries, keys: keys})
}

type createdKey struct {
	parsed bool
	at     time.Time
	text   string
	id     int64
}

func keyOf(e Entry) createdKey {
	at, ok := parseTime(e.CreatedAt)
	return createdKey{parsed: ok, at: at, text: e.CreatedAt, id: e.ID}
}

// newer reports whether k sorts ahead of o.
func (k createdKey) newer(o createdKey) bool {
	if k.parsed != o.parsed {
		return k.parsed
	}
	if k.parsed && !k.at.Equal(o.at) {
		return k.at.After(o.at)
	}
	if !k.parsed && k.text != o.text {
		return k.text > o.text
	}
	return k.id > o.id
}

type byNewest struct {
	entries []Entry
	keys    []createdKey
}

func (b byNewest) Len() int           { return len(b.entries) }
func (b byNewest) Less(i, j int) bool { return b.keys[i].newer(b.keys[j]) }
func (b byNewest) Swap(i, j int) {
	b.entries[i], b.entries[j] = b.entries[j], b.entries[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}

// createdLayouts are the created_at forms accepted, tried in order.
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func paginate(entries []Entry, users []actor, page, limit int) *Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	total := len(entries)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	byID := make(map[int64]actor, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	logs := make([]LogView, 0, end-start)
	for _, e := range entries[start:end] {
		view := LogView{Entry: e}
		if e.UserID != nil {
			if u, ok := byID[*e.UserID]; ok {
				view.UserName = u.Name
				view.UserLastname = u.Lastname
				view.UserEmail = u.Email
			}
		}
		logs = append(logs, view)
	}

	return &Page{
		Logs: logs,
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: (total + limit - 1) / limit,
		},
	}
}

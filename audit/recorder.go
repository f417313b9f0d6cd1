// Package audit appends and queries the audit trail kept in the store.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"facc/store"
)

// Action kinds
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionImport  = "import"
	ActionRestore = "restore"
	ActionLogin   = "login"
	ActionLogout  = "logout"
)

// Entity kinds
const (
	EntityUser           = "user"
	EntityRequisition    = "requisition"
	EntityPaymentRequest = "payment_request"
	EntityRecord         = "record"
	EntityProvider       = "provider"
	EntityProgramModel   = "program_model"
	EntityCommunity      = "community"
	EntityAccountCode    = "account_code"
	EntityAccountChart   = "account_chart"
	EntityBackup         = "backup"
	EntitySettings       = "settings"
	EntitySession        = "session"
	EntityNotification   = "notification"
)

// Entry is one stored audit record. OldValues and NewValues hold the JSON
// text of the snapshots, or null when there was none.
type Entry struct {
	ID         int64   `json:"id"`
	UserID     *int64  `json:"user_id"`
	ActionType string  `json:"action_type"`
	EntityType string  `json:"entity_type"`
	EntityID   *int64  `json:"entity_id"`
	OldValues  *string `json:"old_values"`
	NewValues  *string `json:"new_values"`
	IPAddress  string  `json:"ip_address"`
	UserAgent  string  `json:"user_agent"`
	CreatedAt  string  `json:"created_at"`
}

// Actor identifies who performed an action and from where.
type Actor struct {
	UserID    *int64
	IP        string
	UserAgent string
}

// Event describes a mutation to record.
type Event struct {
	ActionType string
	EntityType string
	EntityID   int64 // zero means no specific entity
	OldValues  any
	NewValues  any
}

// Recorder appends audit entries through the store.
type Recorder struct {
	store store.Store
	now   func() time.Time
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

// Record appends one entry for ev. Failures are logged and never returned:
// the caller's operation has already happened and must not be undone
// because its audit line could not be written.
func (r *Recorder) Record(ctx context.Context, actor Actor, ev Event) {
	if err := r.Append(ctx, actor, ev); err != nil {
		log.Printf("Error creating audit log (%s %s): %v", ev.ActionType, ev.EntityType, err)
	}
}

// Append is Record with the error returned.
func (r *Recorder) Append(ctx context.Context, actor Actor, ev Event) error {
	entry := Entry{
		UserID:     actor.UserID,
		ActionType: ev.ActionType,
		EntityType: ev.EntityType,
		OldValues:  serialize(ev.OldValues),
		NewValues:  serialize(ev.NewValues),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
		CreatedAt:  store.Timestamp(r.now()),
	}
	if ev.EntityID != 0 {
		id := ev.EntityID
		entry.EntityID = &id
	}

	return r.store.Update(ctx, func(doc *store.Document) error {
		id, err := doc.NextID(store.AuditLogs)
		if err != nil {
			return err
		}
		entry.ID = id

		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		items, err := doc.Items(store.AuditLogs)
		if err != nil {
			return err
		}
		return doc.SetItems(store.AuditLogs, append(items, raw))
	})
}

func serialize(v any) *string {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error serializing audit values: %v", err)
		return nil
	}
	s := string(data)
	if s == "null" {
		return nil
	}
	return &s
}

package controllers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/database"
	"facc/store"
	"facc/utils"
)

// RecordRequest contains the data for a new delivery or receipt record
type RecordRequest struct {
	RequisitionID int64                 `json:"requisition_id" binding:"required"`
	Type          string                `json:"type" binding:"required,oneof=entrada salida"`
	DeliveryDate  string                `json:"delivery_date" binding:"required"`
	DelivererID   int64                 `json:"deliverer_id" binding:"required"`
	ReceiverID    int64                 `json:"receiver_id" binding:"required"`
	Items         []database.RecordItem `json:"items" binding:"required,min=1,dive"`
	Notes         string                `json:"notes"`
}

// ListRecords returns the records, newest first, optionally filtered by type
func (ctl *Controller) ListRecords(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener actas")
		return
	}
	records, err := store.Decode[database.Record](doc, store.Records)
	if err != nil {
		respondError(c, err, "Error al obtener actas")
		return
	}

	kind := c.Query("type")
	out := make([]database.Record, 0, len(records))
	for _, r := range records {
		if kind != "" && r.Type != kind {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	c.JSON(http.StatusOK, out)
}

// GetRecord returns one record
func (ctl *Controller) GetRecord(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener acta")
		return
	}
	r, err := store.FindByID[database.Record](doc, store.Records, id)
	if err != nil {
		respondError(c, notFoundAs(err, "Acta no encontrada"), "Error al obtener acta")
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateRecord registers a delivery ("salida") or receipt ("entrada") of
// items of a requisition
func (ctl *Controller) CreateRecord(c *gin.Context) {
	var req RecordRequest
	if err := bindJSON(c, &req, "Datos de acta inválidos"); err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	now := ctl.now()
	record := &database.Record{
		RequisitionID: req.RequisitionID,
		Type:          req.Type,
		DeliveryDate:  strings.TrimSpace(req.DeliveryDate),
		DelivererID:   req.DelivererID,
		ReceiverID:    req.ReceiverID,
		Items:         req.Items,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedBy:     currentUserIDPtr(c),
	}

	err := ctl.store.Update(ctx, func(doc *store.Document) error {
		r, err := store.FindByID[database.Requisition](doc, store.Requisitions, record.RequisitionID)
		if err != nil {
			return notFoundAs(err, "Requisición no encontrada")
		}
		if err := validateRecord(doc, &r, record); err != nil {
			return err
		}
		return store.Insert(doc, store.Records, record, now)
	})
	if err != nil {
		respondError(c, err, "Error al crear el acta")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionCreate,
		EntityType: audit.EntityRecord,
		EntityID:   record.ID,
		NewValues:  record,
	})
	c.JSON(http.StatusCreated, record)
}

func validateRecord(doc *store.Document, r *database.Requisition, record *database.Record) error {
	var details []string
	if !exists(doc, store.Users, record.DelivererID) {
		details = append(details, "Usuario que entrega no encontrado")
	}
	if !exists(doc, store.Users, record.ReceiverID) {
		details = append(details, "Usuario que recibe no encontrado")
	}
	for i, it := range record.Items {
		if !r.HasItem(it.RequisitionItemID) {
			details = append(details, fmt.Sprintf("Ítem %d: no pertenece a la requisición", i+1))
		}
	}
	if len(details) > 0 {
		return utils.BadRequest("Datos de acta inválidos", details...)
	}
	return nil
}

// DeleteRecord removes a record
func (ctl *Controller) DeleteRecord(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	var old database.Record
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		r, err := store.FindByID[database.Record](doc, store.Records, id)
		if err != nil {
			return notFoundAs(err, "Acta no encontrada")
		}
		old = r
		return store.Remove(doc, store.Records, id)
	})
	if err != nil {
		respondError(c, err, "Error al eliminar el acta")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionDelete,
		EntityType: audit.EntityRecord,
		EntityID:   id,
		OldValues:  old,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Acta eliminada"})
}

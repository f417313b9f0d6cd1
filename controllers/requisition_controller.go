package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/database"
	"facc/middleware"
	"facc/store"
	"facc/utils"
)

// RequisitionRequest contains the editable fields of a requisition
type RequisitionRequest struct {
	Date           string                     `json:"date"`
	ProviderID     int64                      `json:"provider_id" binding:"required"`
	ProgramModelID int64                      `json:"program_model_id" binding:"required"`
	CommunityID    int64                      `json:"community_id" binding:"required"`
	ExecutionDate  string                     `json:"execution_date"`
	Detail         string                     `json:"detail"`
	Items          []database.RequisitionItem `json:"items" binding:"required,min=1,dive"`
	AccountCodes   []int64                    `json:"account_codes"`
	AccountCharts  []int64                    `json:"account_charts"`
}

// RequisitionStatusRequest approves, rejects or returns a requisition. A
// correction must say what to fix.
type RequisitionStatusRequest struct {
	Status  string `json:"status" binding:"required,oneof=approved rejected correction"`
	Comment string `json:"comment" binding:"required_if=Status correction"`
}

// RequisitionDetail is a requisition with its catalog references resolved
type RequisitionDetail struct {
	database.Requisition
	Provider     *database.Provider     `json:"provider,omitempty"`
	ProgramModel *database.ProgramModel `json:"program_model,omitempty"`
	Community    *database.Community    `json:"community,omitempty"`
}

// ListRequisitions returns requisitions, newest first, optionally filtered by
// status and date range
func (ctl *Controller) ListRequisitions(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener requisiciones")
		return
	}
	reqs, err := store.Decode[database.Requisition](doc, store.Requisitions)
	if err != nil {
		respondError(c, err, "Error al obtener requisiciones")
		return
	}

	status := c.Query("status")
	start, end := c.Query("startDate"), c.Query("endDate")
	out := make([]database.Requisition, 0, len(reqs))
	for _, r := range reqs {
		if status != "" && r.Status != status {
			continue
		}
		if start != "" && r.Date < start {
			continue
		}
		if end != "" && r.Date > end {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	c.JSON(http.StatusOK, out)
}

// LastRequisitionNumber returns the highest numeric requisition number, or 0
func (ctl *Controller) LastRequisitionNumber(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener número de requisición")
		return
	}
	reqs, err := store.Decode[database.Requisition](doc, store.Requisitions)
	if err != nil {
		respondError(c, err, "Error al obtener número de requisición")
		return
	}
	c.JSON(http.StatusOK, gin.H{"number": lastRequisitionNumber(reqs)})
}

func lastRequisitionNumber(reqs []database.Requisition) int {
	last := 0
	for _, r := range reqs {
		if n, err := strconv.Atoi(strings.TrimSpace(r.Number)); err == nil && n > last {
			last = n
		}
	}
	return last
}

// GetRequisition returns one requisition with its provider, program model
// and community
func (ctl *Controller) GetRequisition(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener requisición")
		return
	}
	req, err := store.FindByID[database.Requisition](doc, store.Requisitions, id)
	if err != nil {
		respondError(c, notFoundAs(err, "Requisición no encontrada"), "Error al obtener requisición")
		return
	}

	detail := RequisitionDetail{Requisition: req}
	if p, err := store.FindByID[database.Provider](doc, store.Providers, req.ProviderID); err == nil {
		detail.Provider = &p
	}
	if m, err := store.FindByID[database.ProgramModel](doc, store.ProgramModels, req.ProgramModelID); err == nil {
		detail.ProgramModel = &m
	}
	if cm, err := store.FindByID[database.Community](doc, store.Communities, req.CommunityID); err == nil {
		detail.Community = &cm
	}
	c.JSON(http.StatusOK, detail)
}

// CreateRequisition adds a pending requisition with the next number. It
// accepts JSON or the multipart form the web client sends, whose list fields
// are JSON strings and which may carry a planning_file attachment.
func (ctl *Controller) CreateRequisition(c *gin.Context) {
	req, err := bindRequisition(c)
	if err != nil {
		respondError(c, err, "Error al crear requisición")
		return
	}

	ctx := c.Request.Context()
	now := ctl.now()
	created := &database.Requisition{
		Status:    database.RequisitionStatusPending,
		CreatedBy: currentUserIDPtr(c),
	}
	applyRequisition(created, req)
	if created.Date == "" {
		created.Date = now.Format("2006-01-02")
	}

	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		if err := validateRequisition(doc, created); err != nil {
			return err
		}
		reqs, err := store.Decode[database.Requisition](doc, store.Requisitions)
		if err != nil {
			return err
		}
		created.Number = fmt.Sprintf("%03d", lastRequisitionNumber(reqs)+1)
		return store.Insert(doc, store.Requisitions, created, now)
	})
	if err != nil {
		respondError(c, err, "Error al crear requisición")
		return
	}

	// The attachment is optional; a failure to keep it does not undo the requisition
	if path, err := ctl.saveAttachment(c, "planning_file", created.ID, "planning"); err != nil {
		log.Printf("Error saving planning file for requisition %d: %v [%s]", created.ID, err, middleware.RequestID(c))
	} else if path != "" {
		updated, err := store.UpdateByID(ctx, ctl.store, store.Requisitions, created.ID, func(r *database.Requisition) error {
			r.PlanningDocument = path
			return nil
		})
		if err != nil {
			log.Printf("Error linking planning file %s to requisition %d: %v [%s]", path, created.ID, err, middleware.RequestID(c))
		} else {
			created = updated
		}
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionCreate,
		EntityType: audit.EntityRequisition,
		EntityID:   created.ID,
		NewValues:  created,
	})
	c.JSON(http.StatusCreated, created)
}

func bindRequisition(c *gin.Context) (RequisitionRequest, error) {
	var req RequisitionRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return req, bindJSON(c, &req, "Datos de requisición inválidos")
	}

	req.Date = c.PostForm("date")
	req.ExecutionDate = c.PostForm("execution_date")
	req.Detail = c.PostForm("detail")
	for field, dst := range map[string]*int64{
		"provider_id":      &req.ProviderID,
		"program_model_id": &req.ProgramModelID,
		"community_id":     &req.CommunityID,
	} {
		if v := c.PostForm(field); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return req, utils.BadRequest("Datos de requisición inválidos", field+" no es numérico")
			}
			*dst = n
		}
	}
	for field, dst := range map[string]any{
		"items":          &req.Items,
		"account_codes":  &req.AccountCodes,
		"account_charts": &req.AccountCharts,
	} {
		if v := c.PostForm(field); v != "" {
			if err := json.Unmarshal([]byte(v), dst); err != nil {
				return req, utils.BadRequest("Datos de requisición inválidos", field+" no es JSON válido")
			}
		}
	}
	return req, validate(req, "Datos de requisición inválidos")
}

func applyRequisition(r *database.Requisition, req RequisitionRequest) {
	if req.Date != "" {
		r.Date = req.Date
	}
	r.ProviderID = req.ProviderID
	r.ProgramModelID = req.ProgramModelID
	r.CommunityID = req.CommunityID
	r.ExecutionDate = req.ExecutionDate
	r.Detail = strings.TrimSpace(req.Detail)
	r.Items = req.Items
	r.AccountCodes = req.AccountCodes
	r.AccountCharts = req.AccountCharts
	if r.AccountCodes == nil {
		r.AccountCodes = []int64{}
	}
	if r.AccountCharts == nil {
		r.AccountCharts = []int64{}
	}
	for i := range r.Items {
		if r.Items[i].ItemNumber == 0 {
			r.Items[i].ItemNumber = i + 1
		}
	}
}

// validateRequisition checks the references and lines of r against doc.
func validateRequisition(doc *store.Document, r *database.Requisition) error {
	var details []string
	if !exists(doc, store.Providers, r.ProviderID) {
		details = append(details, "Proveedor no encontrado")
	}
	if !exists(doc, store.ProgramModels, r.ProgramModelID) {
		details = append(details, "Modelo de programa no encontrado")
	}
	if !exists(doc, store.Communities, r.CommunityID) {
		details = append(details, "Comunidad no encontrada")
	}
	for _, id := range r.AccountCodes {
		if !exists(doc, store.AccountCodes, id) {
			details = append(details, fmt.Sprintf("Código contable %d no encontrado", id))
		}
	}
	for _, id := range r.AccountCharts {
		if !exists(doc, store.AccountChart, id) {
			details = append(details, fmt.Sprintf("Cuenta %d no encontrada", id))
		}
	}

	seen := map[int]bool{}
	for i, it := range r.Items {
		if seen[it.ItemNumber] {
			details = append(details, fmt.Sprintf("Ítem %d: número repetido", i+1))
		}
		seen[it.ItemNumber] = true
	}

	if len(details) > 0 {
		return utils.BadRequest("Datos de requisición inválidos", details...)
	}
	return nil
}

func exists(doc *store.Document, collection string, id int64) bool {
	if id <= 0 {
		return false
	}
	_, err := store.FindByID[json.RawMessage](doc, collection, id)
	return err == nil
}

// notFoundAs replaces store.ErrNotFound with a NotFound carrying message.
func notFoundAs(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return utils.NotFound(message)
	}
	return err
}

// UpdateRequisition edits a requisition that is still pending or sent back
// for correction
func (ctl *Controller) UpdateRequisition(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	req, err := bindRequisition(c)
	if err != nil {
		respondError(c, err, "Error al actualizar requisición")
		return
	}

	ctx := c.Request.Context()
	var before database.Requisition
	var after *database.Requisition
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		r, err := store.FindByID[database.Requisition](doc, store.Requisitions, id)
		if err != nil {
			return notFoundAs(err, "Requisición no encontrada")
		}
		if r.Status != database.RequisitionStatusPending && r.Status != database.RequisitionStatusCorrection {
			return utils.BadRequest("Solo se pueden editar requisiciones pendientes o en corrección")
		}
		before = r

		updated := r
		applyRequisition(&updated, req)
		if err := validateRequisition(doc, &updated); err != nil {
			return err
		}
		updated.Touch(ctl.now())
		after = &updated
		return store.Replace(doc, store.Requisitions, after)
	})
	if err != nil {
		respondError(c, err, "Error al actualizar requisición")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntityRequisition,
		EntityID:   id,
		OldValues:  before,
		NewValues:  after,
	})
	c.JSON(http.StatusOK, after)
}

// SubmitRequisition sends a corrected requisition back for review
func (ctl *Controller) SubmitRequisition(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	var before database.Requisition
	after, err := store.UpdateByID(ctx, ctl.store, store.Requisitions, id, func(r *database.Requisition) error {
		if r.Status != database.RequisitionStatusCorrection {
			return utils.BadRequest("Solo se pueden reenviar requisiciones en corrección")
		}
		before = *r
		r.Status = database.RequisitionStatusPending
		r.Touch(ctl.now())
		return nil
	})
	if err != nil {
		respondError(c, notFoundAs(err, "Requisición no encontrada"), "Error al enviar la requisición para revisión")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntityRequisition,
		EntityID:   id,
		OldValues:  gin.H{"status": before.Status},
		NewValues:  gin.H{"status": after.Status},
	})
	c.JSON(http.StatusOK, after)
}

// UpdateRequisitionStatus approves, rejects or returns a pending requisition
// for correction, and notifies its creator
func (ctl *Controller) UpdateRequisitionStatus(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	var req RequisitionStatusRequest
	if err := bindJSON(c, &req, "Estado inválido"); err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	now := ctl.now()
	var before database.Requisition
	var after database.Requisition
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		r, err := store.FindByID[database.Requisition](doc, store.Requisitions, id)
		if err != nil {
			return notFoundAs(err, "Requisición no encontrada")
		}
		if r.Status != database.RequisitionStatusPending {
			return utils.BadRequest("La requisición ya fue procesada")
		}
		before = r

		r.Status = req.Status
		r.StatusComment = strings.TrimSpace(req.Comment)
		r.Touch(now)
		after = r
		if err := store.Replace(doc, store.Requisitions, &r); err != nil {
			return err
		}

		if r.CreatedBy == nil {
			return nil
		}
		return store.Insert(doc, store.Notifications, &database.Notification{
			UserID:      *r.CreatedBy,
			Title:       fmt.Sprintf("Requisición %s", r.Number),
			Message:     requisitionStatusMessage(r),
			Type:        "requisition_status",
			RelatedID:   &r.ID,
			RelatedType: audit.EntityRequisition,
		}, now)
	})
	if err != nil {
		respondError(c, err, "Error al actualizar estado")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntityRequisition,
		EntityID:   id,
		OldValues:  gin.H{"status": before.Status, "status_comment": before.StatusComment},
		NewValues:  gin.H{"status": after.Status, "status_comment": after.StatusComment},
	})
	c.JSON(http.StatusOK, after)
}

func requisitionStatusMessage(r database.Requisition) string {
	var msg string
	switch r.Status {
	case database.RequisitionStatusApproved:
		msg = "Su requisición fue aprobada"
	case database.RequisitionStatusRejected:
		msg = "Su requisición fue rechazada"
	default:
		msg = "Su requisición requiere correcciones"
	}
	if r.StatusComment != "" {
		msg += ": " + r.StatusComment
	}
	return msg
}

// DeleteRequisition removes a requisition that nothing references
func (ctl *Controller) DeleteRequisition(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	var old database.Requisition
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		r, err := store.FindByID[database.Requisition](doc, store.Requisitions, id)
		if err != nil {
			return notFoundAs(err, "Requisición no encontrada")
		}
		payments, err := store.Decode[database.PaymentRequest](doc, store.PaymentRequests)
		if err != nil {
			return err
		}
		records, err := store.Decode[database.Record](doc, store.Records)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.RequisitionID == id {
				return utils.BadRequest("La requisición tiene solicitudes de pago asociadas")
			}
		}
		for _, rec := range records {
			if rec.RequisitionID == id {
				return utils.BadRequest("La requisición tiene actas asociadas")
			}
		}
		old = r
		return store.Remove(doc, store.Requisitions, id)
	})
	if err != nil {
		respondError(c, err, "Error al eliminar requisición")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionDelete,
		EntityType: audit.EntityRequisition,
		EntityID:   id,
		OldValues:  old,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Requisición eliminada"})
}

// UploadSignedRequisition attaches the signed PDF of a requisition
func (ctl *Controller) UploadSignedRequisition(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	file, err := c.FormFile("signed_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Debe adjuntar el PDF firmado"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "El documento firmado debe ser un PDF"})
		return
	}

	ctx := c.Request.Context()
	doc, err := ctl.store.Read(ctx)
	if err != nil {
		respondError(c, err, "Error al subir el PDF firmado")
		return
	}
	if !exists(doc, store.Requisitions, id) {
		respondError(c, utils.NotFound("Requisición no encontrada"), "")
		return
	}

	path, err := ctl.saveAttachment(c, "signed_file", id, "signed")
	if err != nil {
		respondError(c, err, "Error al subir el PDF firmado")
		return
	}

	var before string
	after, err := store.UpdateByID(ctx, ctl.store, store.Requisitions, id, func(r *database.Requisition) error {
		before = r.SignedDocument
		r.SignedDocument = path
		r.Touch(ctl.now())
		return nil
	})
	if err != nil {
		os.Remove(filepath.Join(ctl.cfg.UploadDir, path))
		respondError(c, notFoundAs(err, "Requisición no encontrada"), "Error al subir el PDF firmado")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntityRequisition,
		EntityID:   id,
		OldValues:  gin.H{"signed_document": before},
		NewValues:  gin.H{"signed_document": path},
	})
	c.JSON(http.StatusOK, after)
}

// saveAttachment stores the multipart file named field under the upload
// directory and returns its path relative to it, or "" when the request
// carries no such file.
func (ctl *Controller) saveAttachment(c *gin.Context, field string, id int64, kind string) (string, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return "", nil
	}
	file, err := c.FormFile(field)
	if err != nil {
		return "", nil
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	rel := filepath.Join("requisitions", fmt.Sprintf("%d-%s-%d%s", id, kind, ctl.now().UnixMilli(), ext))
	dst := filepath.Join(ctl.cfg.UploadDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

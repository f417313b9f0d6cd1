package controllers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/database"
	"facc/store"
	"facc/utils"
)

// PaymentRequestRequest contains the data for a new payment request
type PaymentRequestRequest struct {
	RequisitionID int64                     `json:"requisition_id" binding:"required"`
	Date          string                    `json:"date"`
	Accounts      []database.PaymentAccount `json:"accounts" binding:"required,min=1,dive"`
}

// PaymentStatusRequest approves or rejects a payment request
type PaymentStatusRequest struct {
	Status  string `json:"status" binding:"required,oneof=approved rejected"`
	Comment string `json:"comment"`
}

// ListPaymentRequests returns payment requests, optionally filtered by
// status and requisition
func (ctl *Controller) ListPaymentRequests(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener solicitudes de pago")
		return
	}
	payments, err := store.Decode[database.PaymentRequest](doc, store.PaymentRequests)
	if err != nil {
		respondError(c, err, "Error al obtener solicitudes de pago")
		return
	}

	status := c.Query("status")
	reqID, _ := strconv.ParseInt(c.Query("requisitionId"), 10, 64)
	out := make([]database.PaymentRequest, 0, len(payments))
	for _, p := range payments {
		if status != "" && p.Status != status {
			continue
		}
		if reqID != 0 && p.RequisitionID != reqID {
			continue
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, out)
}

// GetPaymentRequest returns one payment request
func (ctl *Controller) GetPaymentRequest(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener solicitud de pago")
		return
	}
	p, err := store.FindByID[database.PaymentRequest](doc, store.PaymentRequests, id)
	if err != nil {
		respondError(c, notFoundAs(err, "Solicitud de pago no encontrada"), "Error al obtener solicitud de pago")
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreatePaymentRequest asks for payment of an approved requisition. The
// total is computed from the accounts, never taken from the client.
func (ctl *Controller) CreatePaymentRequest(c *gin.Context) {
	var req PaymentRequestRequest
	if err := bindJSON(c, &req, "Datos de solicitud de pago inválidos"); err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	now := ctl.now()
	payment := &database.PaymentRequest{
		RequisitionID: req.RequisitionID,
		Date:          req.Date,
		Accounts:      req.Accounts,
		Status:        database.PaymentStatusPending,
		CreatedBy:     currentUserIDPtr(c),
	}
	if payment.Date == "" {
		payment.Date = now.Format("2006-01-02")
	}
	// Round to cents so float sums do not drift
	payment.TotalAmount = math.Round(payment.Total()*100) / 100

	err := ctl.store.Update(ctx, func(doc *store.Document) error {
		r, err := store.FindByID[database.Requisition](doc, store.Requisitions, req.RequisitionID)
		if err != nil {
			return notFoundAs(err, "Requisición no encontrada")
		}
		if r.Status != database.RequisitionStatusApproved {
			return utils.BadRequest("La requisición debe estar aprobada")
		}
		if err := validateAccounts(doc, payment.Accounts); err != nil {
			return err
		}
		return store.Insert(doc, store.PaymentRequests, payment, now)
	})
	if err != nil {
		respondError(c, err, "Error al crear la solicitud de pago")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionCreate,
		EntityType: audit.EntityPaymentRequest,
		EntityID:   payment.ID,
		NewValues:  payment,
	})
	c.JSON(http.StatusCreated, payment)
}

func validateAccounts(doc *store.Document, accounts []database.PaymentAccount) error {
	var details []string
	for i, a := range accounts {
		if !exists(doc, store.AccountCodes, a.AccountCodeID) {
			details = append(details, fmt.Sprintf("Cuenta %d: código contable no encontrado", i+1))
		}
		if !exists(doc, store.AccountChart, a.AccountChartID) {
			details = append(details, fmt.Sprintf("Cuenta %d: cuenta no encontrada", i+1))
		}
	}
	if len(details) > 0 {
		return utils.BadRequest("Datos de solicitud de pago inválidos", details...)
	}
	return nil
}

// UpdatePaymentRequestStatus approves or rejects a pending payment request
func (ctl *Controller) UpdatePaymentRequestStatus(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}
	var req PaymentStatusRequest
	if err := bindJSON(c, &req, "Estado inválido"); err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	now := ctl.now()
	var before, after database.PaymentRequest
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		p, err := store.FindByID[database.PaymentRequest](doc, store.PaymentRequests, id)
		if err != nil {
			return notFoundAs(err, "Solicitud de pago no encontrada")
		}
		if p.Status != database.PaymentStatusPending {
			return utils.BadRequest("La solicitud de pago ya fue procesada")
		}
		before = p

		p.Status = req.Status
		p.StatusComment = strings.TrimSpace(req.Comment)
		p.Touch(now)
		after = p
		if err := store.Replace(doc, store.PaymentRequests, &p); err != nil {
			return err
		}

		if p.CreatedBy == nil {
			return nil
		}
		verb := "aprobada"
		if p.Status == database.PaymentStatusRejected {
			verb = "rechazada"
		}
		return store.Insert(doc, store.Notifications, &database.Notification{
			UserID:      *p.CreatedBy,
			Title:       fmt.Sprintf("Solicitud de pago %d", p.ID),
			Message:     "Su solicitud de pago fue " + verb,
			Type:        "payment_status",
			RelatedID:   &p.ID,
			RelatedType: audit.EntityPaymentRequest,
		}, now)
	})
	if err != nil {
		respondError(c, err, "Error al actualizar estado")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntityPaymentRequest,
		EntityID:   id,
		OldValues:  gin.H{"status": before.Status},
		NewValues:  gin.H{"status": after.Status, "status_comment": after.StatusComment},
	})
	c.JSON(http.StatusOK, after)
}

// DeletePaymentRequest removes a payment request
func (ctl *Controller) DeletePaymentRequest(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	var old database.PaymentRequest
	err = ctl.store.Update(ctx, func(doc *store.Document) error {
		p, err := store.FindByID[database.PaymentRequest](doc, store.PaymentRequests, id)
		if err != nil {
			return notFoundAs(err, "Solicitud de pago no encontrada")
		}
		old = p
		return store.Remove(doc, store.PaymentRequests, id)
	})
	if err != nil {
		respondError(c, err, "Error al eliminar la solicitud de pago")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionDelete,
		EntityType: audit.EntityPaymentRequest,
		EntityID:   id,
		OldValues:  old,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Solicitud de pago eliminada"})
}

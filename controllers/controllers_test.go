package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facc/audit"
	"facc/backup"
	"facc/config"
	"facc/database"
	"facc/middleware"
	"facc/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	ctl   *Controller
	store *store.FileStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataFile = filepath.Join(dir, "db.json")
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.JWTSecret = "test-secret"

	s, err := store.NewFileStore(cfg.DataFile)
	require.NoError(t, err)
	rec := audit.NewRecorder(s)
	backups, err := backup.NewService(cfg.BackupDir, backup.NewDocumentSnapshotter(s), rec)
	require.NoError(t, err)
	return &testEnv{ctl: New(cfg, s, rec, backups), store: s}
}

// caller is the authenticated user a test request is made as.
type caller struct {
	id   int64
	role string
}

var (
	anonymous = caller{}
	admin     = caller{id: 1, role: database.RoleAdmin}
	promotor  = caller{id: 2, role: database.RolePromotor}
)

// do serves one request to h registered under pattern.
func (e *testEnv) do(t *testing.T, who caller, method, pattern, path string, h gin.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if who.id != 0 {
			c.Set(middleware.KeyUserID, who.id)
			c.Set(middleware.KeyRole, who.role)
		}
	})
	r.Handle(method, pattern, h)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// errorBody is the shape of every error response.
type errorBody struct {
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) seedCatalogs(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for name, items := range map[string][]map[string]any{
		store.Providers:     {{"name": "Ferretería Central", "ruc": "0991234567001"}},
		store.ProgramModels: {{"name": "Agua Segura"}, {"name": "Huertos"}},
		store.Communities:   {{"name": "San Pedro"}, {"name": "La Esperanza"}},
		store.AccountCodes:  {{"code": "5.1.01", "description": "Materiales"}},
		store.AccountChart:  {{"account": "1101", "description": "Caja"}},
	} {
		_, err := store.AddToCollection(ctx, e.store, name, items)
		require.NoError(t, err)
	}
}

func (e *testEnv) seedUsers(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []*database.User{
		{Name: "Ana", Lastname: "Admin", Email: "ana@facc.org", Role: database.RoleAdmin},
		{Name: "Pedro", Lastname: "Promotor", Email: "pedro@facc.org", Role: database.RolePromotor},
	} {
		require.NoError(t, store.Append(ctx, e.store, store.Users, u))
	}
}

func validRequisition() gin.H {
	return gin.H{
		"date":             "2024-03-05",
		"provider_id":      1,
		"program_model_id": 1,
		"community_id":     1,
		"execution_date":   "2024-03-20",
		"detail":           "Materiales para el sistema de agua",
		"items": []gin.H{
			{"quantity": 10, "description": "Tubo PVC 2\""},
			{"quantity": 4, "description": "Codo 90°"},
		},
		"account_codes":  []int{1},
		"account_charts": []int{1},
	}
}

func (e *testEnv) createRequisition(t *testing.T, who caller, body gin.H) database.Requisition {
	t.Helper()
	w := e.do(t, who, http.MethodPost, "/requisitions", "/requisitions", e.ctl.CreateRequisition, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[database.Requisition](t, w)
}

func (e *testEnv) setRequisitionStatus(t *testing.T, id int64, status, comment string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, admin, http.MethodPut, "/requisitions/:id/status", "/requisitions/"+itoa(id)+"/status",
		e.ctl.UpdateRequisitionStatus, gin.H{"status": status, "comment": comment})
}

func (e *testEnv) auditEntries(t *testing.T) []audit.Entry {
	t.Helper()
	doc, err := e.store.Read(context.Background())
	require.NoError(t, err)
	entries, err := store.Decode[audit.Entry](doc, store.AuditLogs)
	require.NoError(t, err)
	return entries
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestAuditLogs_PagesNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	e.createRequisition(t, admin, validRequisition())
	e.createRequisition(t, admin, validRequisition())

	w := e.do(t, admin, http.MethodGet, "/audit-logs", "/audit-logs?entityType=requisition&page=1&limit=1", e.ctl.GetAuditLogs, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	page := decode[audit.Page](t, w)
	require.Len(t, page.Logs, 1)
	assert.EqualValues(t, 2, page.Logs[0].ID)
	assert.Equal(t, audit.Pagination{Total: 2, Page: 1, Limit: 1, Pages: 2}, page.Pagination)
	// The acting user does not exist, so the join is empty
	assert.Empty(t, page.Logs[0].UserEmail)
}

func TestAuditLogs_QueryParameters(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	e.createRequisition(t, admin, validRequisition())

	w := e.do(t, admin, http.MethodGet, "/audit-logs", "/audit-logs?entityId=abc", e.ctl.GetAuditLogs, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, admin, http.MethodGet, "/audit-logs", "/audit-logs?page=0", e.ctl.GetAuditLogs, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, admin, http.MethodGet, "/audit-logs", "/audit-logs?entityId=0&limit=1000", e.ctl.GetAuditLogs, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[audit.Page](t, w)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.Equal(t, MaxAuditLimit, page.Pagination.Limit)

	w = e.do(t, admin, http.MethodGet, "/audit-logs", "/audit-logs?page=5", e.ctl.GetAuditLogs, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[audit.Page](t, w)
	assert.Empty(t, page.Logs)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestCreateRequisition_NumbersAndValidation(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)

	first := e.createRequisition(t, promotor, validRequisition())
	second := e.createRequisition(t, promotor, validRequisition())
	assert.Equal(t, "001", first.Number)
	assert.Equal(t, "002", second.Number)
	assert.Equal(t, database.RequisitionStatusPending, first.Status)
	require.NotNil(t, first.CreatedBy)
	assert.Equal(t, promotor.id, *first.CreatedBy)
	require.Len(t, first.Items, 2)
	assert.Equal(t, 1, first.Items[0].ItemNumber)
	assert.Equal(t, 2, first.Items[1].ItemNumber)

	w := e.do(t, promotor, http.MethodGet, "/requisitions/last-number", "/requisitions/last-number", e.ctl.LastRequisitionNumber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"number":2}`, w.Body.String())

	bad := validRequisition()
	bad["provider_id"] = 99
	w = e.do(t, promotor, http.MethodPost, "/requisitions", "/requisitions", e.ctl.CreateRequisition, bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Details, "Proveedor no encontrado")

	empty := validRequisition()
	empty["items"] = []gin.H{}
	w = e.do(t, promotor, http.MethodPost, "/requisitions", "/requisitions", e.ctl.CreateRequisition, empty)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Details, "items: debe tener al menos 1 elemento(s)")

	zero := validRequisition()
	zero["items"] = []gin.H{{"quantity": 0, "description": "Tubo"}}
	w = e.do(t, promotor, http.MethodPost, "/requisitions", "/requisitions", e.ctl.CreateRequisition, zero)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Details, "items[0].quantity: debe ser mayor a 0")

	// Only the two successful creations were audited
	assert.Len(t, e.auditEntries(t), 2)
}

func TestGetRequisition_ResolvesCatalogs(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	r := e.createRequisition(t, promotor, validRequisition())

	w := e.do(t, promotor, http.MethodGet, "/requisitions/:id", "/requisitions/"+itoa(r.ID), e.ctl.GetRequisition, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[RequisitionDetail](t, w)
	require.NotNil(t, detail.Provider)
	assert.Equal(t, "Ferretería Central", detail.Provider.Name)
	require.NotNil(t, detail.Community)
	assert.Equal(t, "San Pedro", detail.Community.Name)

	w = e.do(t, promotor, http.MethodGet, "/requisitions/:id", "/requisitions/42", e.ctl.GetRequisition, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, promotor, http.MethodGet, "/requisitions/:id", "/requisitions/abc", e.ctl.GetRequisition, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequisitionWorkflow(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	r := e.createRequisition(t, promotor, validRequisition())

	w := e.setRequisitionStatus(t, r.ID, database.RequisitionStatusCorrection, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "correction needs a comment")
	w = e.setRequisitionStatus(t, r.ID, "archived", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.setRequisitionStatus(t, r.ID, database.RequisitionStatusCorrection, "Falta cotización")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The creator was told what to fix
	w = e.do(t, promotor, http.MethodGet, "/notifications", "/notifications", e.ctl.ListNotifications, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]database.Notification](t, w)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "Falta cotización")
	assert.False(t, notes[0].IsRead)

	// Edit while in correction, then resubmit
	edit := validRequisition()
	edit["detail"] = "Con cotización adjunta"
	w = e.do(t, promotor, http.MethodPut, "/requisitions/:id", "/requisitions/"+itoa(r.ID), e.ctl.UpdateRequisition, edit)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, promotor, http.MethodPost, "/requisitions/:id/submit", "/requisitions/"+itoa(r.ID)+"/submit", e.ctl.SubmitRequisition, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, database.RequisitionStatusPending, decode[database.Requisition](t, w).Status)

	w = e.setRequisitionStatus(t, r.ID, database.RequisitionStatusApproved, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.setRequisitionStatus(t, r.ID, database.RequisitionStatusRejected, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "already processed")

	// Approved requisitions are no longer editable
	w = e.do(t, promotor, http.MethodPut, "/requisitions/:id", "/requisitions/"+itoa(r.ID), e.ctl.UpdateRequisition, edit)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var updates int
	for _, entry := range e.auditEntries(t) {
		if entry.ActionType == audit.ActionUpdate && entry.EntityType == audit.EntityRequisition {
			updates++
			assert.NotNil(t, entry.OldValues)
			assert.NotNil(t, entry.NewValues)
		}
	}
	assert.Equal(t, 4, updates)
}

func TestPaymentRequests(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	r := e.createRequisition(t, promotor, validRequisition())

	payment := gin.H{
		"requisition_id": r.ID,
		"date":           "2024-04-01",
		"accounts": []gin.H{
			{"account_code_id": 1, "account_chart_id": 1, "amount": 100.10},
			{"account_code_id": 1, "account_chart_id": 1, "amount": 50.20},
		},
	}
	w := e.do(t, promotor, http.MethodPost, "/payment-requests", "/payment-requests", e.ctl.CreatePaymentRequest, payment)
	assert.Equal(t, http.StatusBadRequest, w.Code, "requisition not approved yet")

	require.Equal(t, http.StatusOK, e.setRequisitionStatus(t, r.ID, database.RequisitionStatusApproved, "").Code)

	bad := gin.H{"requisition_id": r.ID, "accounts": []gin.H{{"account_code_id": 7, "account_chart_id": 1, "amount": 25}}}
	w = e.do(t, promotor, http.MethodPost, "/payment-requests", "/payment-requests", e.ctl.CreatePaymentRequest, bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Cuenta 1: código contable no encontrado")

	bad = gin.H{"requisition_id": r.ID, "accounts": []gin.H{{"account_code_id": 1, "account_chart_id": 1, "amount": 0}}}
	w = e.do(t, promotor, http.MethodPost, "/payment-requests", "/payment-requests", e.ctl.CreatePaymentRequest, bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Details, "accounts[0].amount: debe ser mayor a 0")

	w = e.do(t, promotor, http.MethodPost, "/payment-requests", "/payment-requests", e.ctl.CreatePaymentRequest, gin.H{"requisition_id": r.ID, "accounts": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, promotor, http.MethodPost, "/payment-requests", "/payment-requests", e.ctl.CreatePaymentRequest, payment)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[database.PaymentRequest](t, w)
	assert.InDelta(t, 150.30, created.TotalAmount, 1e-9)
	assert.Equal(t, database.PaymentStatusPending, created.Status)

	w = e.do(t, admin, http.MethodPut, "/payment-requests/:id/status", "/payment-requests/"+itoa(created.ID)+"/status",
		e.ctl.UpdatePaymentRequestStatus, gin.H{"status": database.PaymentStatusApproved})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, promotor, http.MethodGet, "/payment-requests", "/payment-requests?status=approved&requisitionId="+itoa(r.ID), e.ctl.ListPaymentRequests, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]database.PaymentRequest](t, w), 1)

	// A requisition with payments cannot be deleted
	w = e.do(t, admin, http.MethodDelete, "/requisitions/:id", "/requisitions/"+itoa(r.ID), e.ctl.DeleteRequisition, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, admin, http.MethodDelete, "/payment-requests/:id", "/payment-requests/"+itoa(created.ID), e.ctl.DeletePaymentRequest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, admin, http.MethodDelete, "/requisitions/:id", "/requisitions/"+itoa(r.ID), e.ctl.DeleteRequisition, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecords(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	e.seedUsers(t)
	r := e.createRequisition(t, promotor, validRequisition())

	record := gin.H{
		"requisition_id": r.ID,
		"type":           database.RecordTypeOut,
		"delivery_date":  "2024-04-10",
		"deliverer_id":   1,
		"receiver_id":    2,
		"items":          []gin.H{{"requisition_item_id": 3, "quantity": 1}},
	}
	w := e.do(t, promotor, http.MethodPost, "/records", "/records", e.ctl.CreateRecord, record)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Ítem 1: no pertenece a la requisición")

	record["items"] = []gin.H{{"requisition_item_id": 2, "quantity": 4}}
	w = e.do(t, promotor, http.MethodPost, "/records", "/records", e.ctl.CreateRecord, record)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[database.Record](t, w)

	record["type"] = "traslado"
	w = e.do(t, promotor, http.MethodPost, "/records", "/records", e.ctl.CreateRecord, record)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Details, "type: debe ser uno de: entrada, salida")

	record["type"] = database.RecordTypeOut
	record["requisition_id"] = 99
	w = e.do(t, promotor, http.MethodPost, "/records", "/records", e.ctl.CreateRecord, record)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, promotor, http.MethodGet, "/records", "/records?type=entrada", e.ctl.ListRecords, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]database.Record](t, w))
	w = e.do(t, promotor, http.MethodGet, "/records", "/records?type=salida", e.ctl.ListRecords, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]database.Record](t, w), 1)

	w = e.do(t, admin, http.MethodDelete, "/records/:id", "/records/"+itoa(created.ID), e.ctl.DeleteRecord, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, promotor, http.MethodGet, "/records/:id", "/records/"+itoa(created.ID), e.ctl.GetRecord, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkNotificationRead_OwnerOnly(t *testing.T) {
	e := newTestEnv(t)
	e.seedCatalogs(t)
	r := e.createRequisition(t, promotor, validRequisition())
	require.Equal(t, http.StatusOK, e.setRequisitionStatus(t, r.ID, database.RequisitionStatusRejected, "Sin fondos").Code)

	w := e.do(t, admin, http.MethodPut, "/notifications/:id/read", "/notifications/1/read", e.ctl.MarkNotificationRead, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, promotor, http.MethodPut, "/notifications/:id/read", "/notifications/1/read", e.ctl.MarkNotificationRead, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[database.Notification](t, w).IsRead)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, anonymous, http.MethodGet, "/health", "/health", e.ctl.Health, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"driver":"file","status":"ok"}`, w.Body.String())
}

func TestActor(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("User-Agent", "facc-test")

	a := actor(c)
	assert.Nil(t, a.UserID)
	assert.Equal(t, "facc-test", a.UserAgent)

	c.Set(middleware.KeyUserID, int64(7))
	a = actor(c)
	require.NotNil(t, a.UserID)
	assert.Equal(t, int64(7), *a.UserID)
	assert.Equal(t, "192.0.2.1", a.IP)
}

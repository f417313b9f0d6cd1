package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facc/audit"
	"facc/backup"
	"facc/cache"
	"facc/config"
	"facc/controllers"
	"facc/database"
	"facc/middleware"
	"facc/store"
	"facc/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, rate int) (*gin.Engine, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataFile = filepath.Join(dir, "db.json")
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.JWTSecret = "routes-secret"

	responses := cache.New(time.Minute)
	s, err := store.NewFileStore(cfg.DataFile, store.WithOnChange(responses.Clear))
	require.NoError(t, err)
	require.NoError(t, database.Bootstrap(context.Background(), s))
	require.NoError(t, database.SeedDefaultAdmin(context.Background(), s, cfg.AdminEmail, cfg.AdminPassword))

	rec := audit.NewRecorder(s)
	backups, err := backup.NewService(cfg.BackupDir, backup.NewDocumentSnapshotter(s), rec, backup.WithAfterRestore(responses.Clear))
	require.NoError(t, err)

	r := gin.New()
	SetupRoutes(r, controllers.New(cfg, s, rec, backups), cfg, responses, middleware.NewRateLimiter(rate, time.Hour))
	return r, cfg
}

func bearer(t *testing.T, cfg *config.Config, id int64, role string) string {
	t.Helper()
	tok, err := utils.GenerateJWT(cfg.JWTSecret, id, "user@facc.org", role, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return "Bearer " + tok
}

func request(r http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	r, _ := newRouter(t, 100)
	w := request(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestAuthAndRoles(t *testing.T) {
	r, cfg := newRouter(t, 100)

	w := request(r, http.MethodGet, "/api/requisitions", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Token no proporcionado"}`, w.Body.String())

	w = request(r, http.MethodGet, "/api/requisitions", "Bearer nope", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	promotor := bearer(t, cfg, 5, database.RolePromotor)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/requisitions", promotor, "").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/api/users", promotor, "").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/api/audit-logs", promotor, "").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPut, "/api/requisitions/1/status", promotor, `{"status":"approved"}`).Code)

	presidencia := bearer(t, cfg, 6, database.RolePresidencia)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/api/requisitions", presidencia, `{}`).Code)
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodPut, "/api/requisitions/1/status", presidencia, `{"status":"approved"}`).Code)

	admin := bearer(t, cfg, 1, database.RoleAdmin)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/users", admin, "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/backups", admin, "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/admin/dashboard", admin, "").Code)

	w = request(r, http.MethodGet, "/api/nothing-here", admin, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginWithSeededAdmin(t *testing.T) {
	r, cfg := newRouter(t, 100)

	w := request(r, http.MethodPost, "/api/auth/login", "", `{"email":"Admin@FACC.org","password":"`+cfg.AdminPassword+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"superusuario"`)
}

func TestCatalogCacheIsClearedByWrites(t *testing.T) {
	r, cfg := newRouter(t, 100)
	admin := bearer(t, cfg, 1, database.RoleAdmin)

	w := request(r, http.MethodGet, "/api/communities", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `[]`, w.Body.String())

	w = request(r, http.MethodGet, "/api/communities", admin, "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = request(r, http.MethodPost, "/api/import/communities", admin, `{"data":[{"Nombre":"San Pedro"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodGet, "/api/communities", admin, "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), "San Pedro")
}

func TestRateLimit(t *testing.T) {
	r, _ := newRouter(t, 2)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/requisitions", "", "").Code)
	}
	w := request(r, http.MethodGet, "/api/requisitions", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Health sits outside /api
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/health", "", "").Code)
}

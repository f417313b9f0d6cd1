// Package controllers holds the HTTP handlers.
package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/backup"
	"facc/config"
	"facc/middleware"
	"facc/store"
	"facc/utils"
)

// Controller carries the dependencies every handler needs.
type Controller struct {
	cfg      *config.Config
	store    store.Store
	recorder *audit.Recorder
	query    *audit.Query
	backups  *backup.Service
	now      func() time.Time
}

// New creates a Controller.
func New(cfg *config.Config, s store.Store, recorder *audit.Recorder, backups *backup.Service) *Controller {
	return &Controller{
		cfg:      cfg,
		store:    s,
		recorder: recorder,
		query:    audit.NewQuery(s),
		backups:  backups,
		now:      time.Now,
	}
}

// respondError writes err as a {message} body. Anything that is not an
// AppError or a known domain error is logged and reported as a generic 500
// using fallback as the message.
func respondError(c *gin.Context, err error, fallback string) {
	var appErr *utils.AppError
	var notFound *backup.NotFoundError
	var corrupt *backup.CorruptError

	switch {
	case errors.As(err, &appErr):
		if appErr.Status >= http.StatusInternalServerError {
			log.Printf("Error: %v [%s]", appErr, middleware.RequestID(c))
		}
		body := gin.H{"message": appErr.Message}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		c.JSON(appErr.Status, body)

	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Registro no encontrado"})

	case errors.Is(err, backup.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Nombre de archivo de respaldo inválido"})

	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Archivo de respaldo no encontrado"})

	case errors.As(err, &corrupt):
		log.Printf("Error: %v [%s]", corrupt, middleware.RequestID(c))
		c.JSON(http.StatusInternalServerError, gin.H{"message": fallback})

	default:
		log.Printf("Error: %s: %v [%s]", fallback, err, middleware.RequestID(c))
		c.JSON(http.StatusInternalServerError, gin.H{"message": fallback})
	}
}

// actor describes the caller for audit entries.
func actor(c *gin.Context) audit.Actor {
	return audit.Actor{
		UserID:    currentUserIDPtr(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// currentUserID returns the authenticated user's id.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(middleware.KeyUserID)
}

func currentUserIDPtr(c *gin.Context) *int64 {
	if id, ok := c.Get(middleware.KeyUserID); ok {
		if uid, ok := id.(int64); ok {
			return &uid
		}
	}
	return nil
}

// parseID reads a positive integer path parameter.
func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.BadRequest("Identificador inválido")
	}
	return id, nil
}

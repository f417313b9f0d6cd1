package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/utils"
)

// MaxAuditLimit caps the page size of an audit query
const MaxAuditLimit = 100

// GetAuditLogs returns a page of the audit trail
func (ctl *Controller) GetAuditLogs(c *gin.Context) {
	f, page, limit, err := auditQueryParams(c)
	if err != nil {
		respondError(c, err, "")
		return
	}
	result, err := ctl.query.Find(c.Request.Context(), f, page, limit)
	if err != nil {
		respondError(c, err, "Error al obtener registros de auditoría")
		return
	}
	c.JSON(http.StatusOK, result)
}

func auditQueryParams(c *gin.Context) (audit.Filter, int, int, error) {
	f := audit.Filter{
		StartDate:  c.Query("startDate"),
		EndDate:    c.Query("endDate"),
		ActionType: c.Query("actionType"),
		EntityType: c.Query("entityType"),
	}

	var err error
	if f.UserID, err = optionalInt(c, "userId"); err != nil {
		return f, 0, 0, err
	}
	if f.EntityID, err = optionalInt(c, "entityId"); err != nil {
		return f, 0, 0, err
	}

	page, err := positiveInt(c, "page", 1)
	if err != nil {
		return f, 0, 0, err
	}
	limit, err := positiveInt(c, "limit", audit.DefaultLimit)
	if err != nil {
		return f, 0, 0, err
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	return f, page, limit, nil
}

// optionalInt reads an id filter; absent, empty and 0 all mean no filter
func optionalInt(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, utils.BadRequest("Parámetro " + name + " inválido")
	}
	return n, nil
}

func positiveInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, utils.BadRequest("Parámetro " + name + " inválido")
	}
	return n, nil
}

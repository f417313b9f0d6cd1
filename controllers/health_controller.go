package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports whether the store can be read
func (ctl *Controller) Health(c *gin.Context) {
	status := gin.H{"driver": ctl.store.Driver(), "status": "ok"}
	if _, err := ctl.store.Read(c.Request.Context()); err != nil {
		status["status"] = "unavailable"
		status["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

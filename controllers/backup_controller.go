package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateBackup writes a snapshot of the data to a new backup file
func (ctl *Controller) CreateBackup(c *gin.Context) {
	filename, err := ctl.backups.Create(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err, "Error al crear respaldo")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Backup created successfully",
		"filename": filename,
	})
}

// ListBackups returns the backup files, newest first
func (ctl *Controller) ListBackups(c *gin.Context) {
	backups, err := ctl.backups.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener respaldos")
		return
	}
	c.JSON(http.StatusOK, backups)
}

// RestoreBackup replaces all data with the contents of a backup file
func (ctl *Controller) RestoreBackup(c *gin.Context) {
	if err := ctl.backups.Restore(c.Request.Context(), actor(c), c.Param("filename")); err != nil {
		respondError(c, err, "Error al restaurar respaldo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup restored successfully"})
}

// DeleteBackup removes a backup file
func (ctl *Controller) DeleteBackup(c *gin.Context) {
	if err := ctl.backups.Delete(c.Request.Context(), actor(c), c.Param("filename")); err != nil {
		respondError(c, err, "Error al eliminar respaldo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Respaldo eliminado"})
}

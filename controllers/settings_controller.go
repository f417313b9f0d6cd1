package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"facc/audit"
	"facc/store"
)

// GetSettings returns the company settings
func (ctl *Controller) GetSettings(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener configuración")
		return
	}
	settings := map[string]any{}
	if err := store.DecodeObject(doc, store.CompanySettings, &settings); err != nil {
		respondError(c, err, "Error al obtener configuración")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings merges the request body into the company settings
func (ctl *Controller) UpdateSettings(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil || patch == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Configuración inválida"})
		return
	}

	ctx := c.Request.Context()
	var before, after map[string]any
	err := ctl.store.Update(ctx, func(doc *store.Document) error {
		before = map[string]any{}
		if err := store.DecodeObject(doc, store.CompanySettings, &before); err != nil {
			return err
		}
		after = make(map[string]any, len(before)+len(patch))
		for k, v := range before {
			after[k] = v
		}
		for k, v := range patch {
			after[k] = v
		}
		return store.EncodeObject(doc, store.CompanySettings, after)
	})
	if err != nil {
		respondError(c, err, "Error al actualizar configuración")
		return
	}

	ctl.recorder.Record(ctx, actor(c), audit.Event{
		ActionType: audit.ActionUpdate,
		EntityType: audit.EntitySettings,
		OldValues:  before,
		NewValues:  after,
	})
	c.JSON(http.StatusOK, after)
}

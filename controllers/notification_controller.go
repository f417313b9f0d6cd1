package controllers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"facc/database"
	"facc/store"
	"facc/utils"
)

// ListNotifications returns the current user's notifications, newest first
func (ctl *Controller) ListNotifications(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener notificaciones")
		return
	}
	all, err := store.Decode[database.Notification](doc, store.Notifications)
	if err != nil {
		respondError(c, err, "Error al obtener notificaciones")
		return
	}

	userID := currentUserID(c)
	out := make([]database.Notification, 0)
	for _, n := range all {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	c.JSON(http.StatusOK, out)
}

// MarkNotificationRead marks one of the current user's notifications read
func (ctl *Controller) MarkNotificationRead(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err, "")
		return
	}

	userID := currentUserID(c)
	now := ctl.now()
	var updated database.Notification
	err = ctl.store.Update(c.Request.Context(), func(doc *store.Document) error {
		n, err := store.FindByID[database.Notification](doc, store.Notifications, id)
		if err != nil {
			return notFoundAs(err, "Notificación no encontrada")
		}
		// Someone else's notification is reported as missing
		if n.UserID != userID {
			return utils.NotFound("Notificación no encontrada")
		}
		if n.IsRead {
			updated = n
			return nil
		}
		n.IsRead = true
		n.Touch(now)
		updated = n
		return store.Replace(doc, store.Notifications, &n)
	})
	if err != nil {
		respondError(c, err, "Error al actualizar notificación")
		return
	}
	c.JSON(http.StatusOK, updated)
}

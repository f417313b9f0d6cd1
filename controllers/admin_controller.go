package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"facc/database"
	"facc/store"
)

// DashboardStats are the counters shown on the admin dashboard
type DashboardStats struct {
	TotalUsers             int `json:"totalUsers"`
	TotalRequisitions      int `json:"totalRequisitions"`
	PendingRequisitions    int `json:"pendingRequisitions"`
	PendingPaymentRequests int `json:"pendingPaymentRequests"`
	TotalRecords           int `json:"totalRecords"`
	AuditEntries           int `json:"auditEntries"`
}

// AdminDashboard returns key statistics for the admin dashboard
func (ctl *Controller) AdminDashboard(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al obtener estadísticas")
		return
	}
	stats, err := dashboardStats(doc)
	if err != nil {
		respondError(c, err, "Error al obtener estadísticas")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func dashboardStats(doc *store.Document) (DashboardStats, error) {
	var stats DashboardStats

	counts := map[string]*int{
		store.Users:     &stats.TotalUsers,
		store.Records:   &stats.TotalRecords,
		store.AuditLogs: &stats.AuditEntries,
	}
	for name, n := range counts {
		items, err := doc.Items(name)
		if err != nil {
			return stats, err
		}
		*n = len(items)
	}

	reqs, err := store.Decode[database.Requisition](doc, store.Requisitions)
	if err != nil {
		return stats, err
	}
	stats.TotalRequisitions = len(reqs)
	for _, r := range reqs {
		if r.Status == database.RequisitionStatusPending {
			stats.PendingRequisitions++
		}
	}

	payments, err := store.Decode[database.PaymentRequest](doc, store.PaymentRequests)
	if err != nil {
		return stats, err
	}
	for _, p := range payments {
		if p.Status == database.PaymentStatusPending {
			stats.PendingPaymentRequests++
		}
	}
	return stats, nil
}

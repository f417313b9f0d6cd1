package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"facc/database"
	"facc/store"
)

// Report aggregates requisitions and their payment requests
type Report struct {
	RequisitionsByStatus map[string]int     `json:"requisitionsByStatus"`
	RequisitionsByMonth  map[string]int     `json:"requisitionsByMonth"`
	PaymentsByStatus     map[string]int     `json:"paymentsByStatus"`
	TotalAmountByMonth   map[string]float64 `json:"totalAmountByMonth"`
}

// ReportFilter narrows the requisitions a report covers. Community and
// ProgramModel match by name.
type ReportFilter struct {
	StartDate    string
	EndDate      string
	Community    string
	ProgramModel string
}

// GetReports returns the dashboard statistics
func (ctl *Controller) GetReports(c *gin.Context) {
	doc, err := ctl.store.Read(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error al generar reportes")
		return
	}
	report, err := BuildReport(doc, ReportFilter{
		StartDate:    c.Query("startDate"),
		EndDate:      c.Query("endDate"),
		Community:    c.Query("community"),
		ProgramModel: c.Query("programModel"),
	})
	if err != nil {
		respondError(c, err, "Error al generar reportes")
		return
	}
	c.JSON(http.StatusOK, report)
}

// BuildReport computes the statistics over doc. Payments count when their
// requisition passes the filter.
func BuildReport(doc *store.Document, f ReportFilter) (*Report, error) {
	reqs, err := store.Decode[database.Requisition](doc, store.Requisitions)
	if err != nil {
		return nil, err
	}
	payments, err := store.Decode[database.PaymentRequest](doc, store.PaymentRequests)
	if err != nil {
		return nil, err
	}
	communities, err := namesByID[database.Community](doc, store.Communities, func(v database.Community) (int64, string) { return v.ID, v.Name })
	if err != nil {
		return nil, err
	}
	models, err := namesByID[database.ProgramModel](doc, store.ProgramModels, func(v database.ProgramModel) (int64, string) { return v.ID, v.Name })
	if err != nil {
		return nil, err
	}

	report := &Report{
		RequisitionsByStatus: map[string]int{
			database.RequisitionStatusPending:    0,
			database.RequisitionStatusApproved:   0,
			database.RequisitionStatusRejected:   0,
			database.RequisitionStatusCorrection: 0,
		},
		RequisitionsByMonth: map[string]int{},
		PaymentsByStatus: map[string]int{
			database.PaymentStatusPending:  0,
			database.PaymentStatusApproved: 0,
			database.PaymentStatusRejected: 0,
		},
		TotalAmountByMonth: map[string]float64{},
	}

	included := map[int64]bool{}
	for _, r := range reqs {
		if f.StartDate != "" && r.Date < f.StartDate {
			continue
		}
		if f.EndDate != "" && r.Date > f.EndDate {
			continue
		}
		if f.Community != "" && communities[r.CommunityID] != f.Community {
			continue
		}
		if f.ProgramModel != "" && models[r.ProgramModelID] != f.ProgramModel {
			continue
		}
		included[r.ID] = true
		if _, ok := report.RequisitionsByStatus[r.Status]; ok {
			report.RequisitionsByStatus[r.Status]++
		}
		report.RequisitionsByMonth[month(r.Date)]++
	}

	for _, p := range payments {
		if !included[p.RequisitionID] {
			continue
		}
		if _, ok := report.PaymentsByStatus[p.Status]; ok {
			report.PaymentsByStatus[p.Status]++
		}
		report.TotalAmountByMonth[month(p.Date)] += p.TotalAmount
	}
	return report, nil
}

func namesByID[T any](doc *store.Document, collection string, key func(T) (int64, string)) (map[int64]string, error) {
	items, err := store.Decode[T](doc, collection)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(items))
	for _, it := range items {
		id, name := key(it)
		names[id] = name
	}
	return names, nil
}

// month returns the YYYY-MM prefix of a date
func month(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

package database

import (
	"facc/store"
)

// User represents a user in the system
type User struct {
	store.Model
	Name         string `json:"name"`
	Lastname     string `json:"lastname"`
	Email        string `json:"email"`
	Password     string `json:"password,omitempty"` // legacy plaintext, replaced by PasswordHash on first login
	PasswordHash string `json:"password_hash,omitempty"`
	Role         string `json:"role"`
}

// Sanitized returns a copy without credentials, safe to send to clients.
func (u User) Sanitized() User {
	u.Password = ""
	u.PasswordHash = ""
	return u
}

// RequisitionItem is one line of a requisition
type RequisitionItem struct {
	ItemNumber  int     `json:"item_number"`
	Quantity    float64 `json:"quantity" binding:"gt=0"`
	Description string  `json:"description" binding:"required"`
}

// Requisition represents a purchase requisition
type Requisition struct {
	store.Model
	Number           string            `json:"number"`
	Date             string            `json:"date"`
	ProviderID       int64             `json:"provider_id"`
	ProgramModelID   int64             `json:"program_model_id"`
	CommunityID      int64             `json:"community_id"`
	ExecutionDate    string            `json:"execution_date"`
	Detail           string            `json:"detail"`
	Items            []RequisitionItem `json:"items"`
	AccountCodes     []int64           `json:"account_codes"`
	AccountCharts    []int64           `json:"account_charts"`
	Status           string            `json:"status"`
	StatusComment    string            `json:"status_comment,omitempty"`
	PlanningDocument string            `json:"planning_document,omitempty"`
	SignedDocument   string            `json:"signed_document,omitempty"`
	CreatedBy        *int64            `json:"created_by"`
}

// HasItem reports whether the requisition has a line with the given number.
func (r *Requisition) HasItem(itemNumber int) bool {
	for _, it := range r.Items {
		if it.ItemNumber == itemNumber {
			return true
		}
	}
	return false
}

// PaymentAccount is one imputation line of a payment request
type PaymentAccount struct {
	AccountCodeID  int64   `json:"account_code_id"`
	AccountChartID int64   `json:"account_chart_id"`
	Amount         float64 `json:"amount" binding:"gt=0"`
}

// PaymentRequest asks for the disbursement of an approved requisition
type PaymentRequest struct {
	store.Model
	RequisitionID int64            `json:"requisition_id"`
	Date          string           `json:"date"`
	Accounts      []PaymentAccount `json:"accounts"`
	TotalAmount   float64          `json:"total_amount"`
	Status        string           `json:"status"`
	StatusComment string           `json:"status_comment,omitempty"`
	CreatedBy     *int64           `json:"created_by"`
}

// Total sums the account amounts.
func (p *PaymentRequest) Total() float64 {
	var total float64
	for _, a := range p.Accounts {
		total += a.Amount
	}
	return total
}

// RecordItem is a delivered quantity of a requisition line
type RecordItem struct {
	RequisitionItemID int     `json:"requisition_item_id"` // item_number of the requisition line
	Quantity          float64 `json:"quantity" binding:"gt=0"`
}

// Record is a delivery or receipt certificate ("acta")
type Record struct {
	store.Model
	RequisitionID int64        `json:"requisition_id"`
	Type          string       `json:"type"`
	DeliveryDate  string       `json:"delivery_date"`
	DelivererID   int64        `json:"deliverer_id"`
	ReceiverID    int64        `json:"receiver_id"`
	Items         []RecordItem `json:"items"`
	Notes         string       `json:"notes"`
	CreatedBy     *int64       `json:"created_by"`
}

// Provider is a supplier
type Provider struct {
	store.Model
	Name      string `json:"name"`
	RUC       string `json:"ruc,omitempty"`
	CreatedBy *int64 `json:"created_by,omitempty"`
}

// ProgramModel is a funding program
type ProgramModel struct {
	store.Model
	Name      string `json:"name"`
	CreatedBy *int64 `json:"created_by,omitempty"`
}

// Community is a member community of the federation
type Community struct {
	store.Model
	Name      string `json:"name"`
	CreatedBy *int64 `json:"created_by,omitempty"`
}

// AccountCode is a budget code
type AccountCode struct {
	store.Model
	Code        string `json:"code"`
	Description string `json:"description"`
	CreatedBy   *int64 `json:"created_by,omitempty"`
}

// AccountChartEntry is an account of the chart of accounts
type AccountChartEntry struct {
	store.Model
	Account     string `json:"account"`
	Description string `json:"description"`
	CreatedBy   *int64 `json:"created_by,omitempty"`
}

// Notification represents a system notification
type Notification struct {
	store.Model
	UserID      int64  `json:"user_id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	RelatedID   *int64 `json:"related_id"`
	RelatedType string `json:"related_type"`
	IsRead      bool   `json:"is_read"`
}

// Constants for status values
const (
	RequisitionStatusPending    = "pending"
	RequisitionStatusApproved   = "approved"
	RequisitionStatusRejected   = "rejected"
	RequisitionStatusCorrection = "correction"

	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"

	RecordTypeIn  = "entrada"
	RecordTypeOut = "salida"

	// User roles
	RolePromotor     = "promotor"
	RoleTecnico      = "tecnico"
	RoleCoordinacion = "coordinacion"
	RoleAdmin        = "administrador"
	RolePresidencia  = "presidencia"
	RoleSuperuser    = "superusuario"
)

// Roles lists every role a user can hold.
var Roles = []string{RolePromotor, RoleTecnico, RoleCoordinacion, RoleAdmin, RolePresidencia, RoleSuperuser}

// IsValidRole reports whether role is one of Roles.
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

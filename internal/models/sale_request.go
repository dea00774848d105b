package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestState is the resolution state of a sale request.
type RequestState string

const (
	RequestPending  RequestState = "pending"
	RequestApproved RequestState = "approved"
	RequestRejected RequestState = "rejected"
)

// Terminal is true once the request has been resolved.
func (s RequestState) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// SaleRequest bundles locked or reserved units with customer data for supervisor review.
type SaleRequest struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UnitIDs          datatypes.JSONSlice[string] `gorm:"column:unit_ids;not null" json:"unit_ids"`
	RequestedBy      string                      `gorm:"column:requested_by;not null;index" json:"requested_by"`
	RequestedByEmail string                      `gorm:"column:requested_by_email" json:"requested_by_email"`
	RequestedByName  string                      `gorm:"column:requested_by_name" json:"requested_by_name"`
	CustomerName     string                      `gorm:"column:customer_name;not null" json:"customer_name"`
	CustomerTaxID    string                      `gorm:"column:customer_tax_id;not null" json:"customer_tax_id"`
	OrderRef         string                      `gorm:"column:order_ref;not null;index" json:"order_ref"`
	DeliveryAddress  string                      `gorm:"column:delivery_address" json:"delivery_address"`
	IncludeSim       bool                        `gorm:"column:include_sim" json:"include_sim"`
	SimNumber        string                      `gorm:"column:sim_number" json:"sim_number"`
	SendByEmail      bool                        `gorm:"column:send_by_email" json:"send_by_email"`
	Notes            string                      `gorm:"column:notes" json:"notes"`
	State            RequestState                `gorm:"column:state;type:varchar(20);not null;default:'pending';index" json:"state"`
	ResolvedBy       *string                     `gorm:"column:resolved_by" json:"resolved_by"`
	ResolvedAt       *time.Time                  `gorm:"column:resolved_at" json:"resolved_at"`
	ResolutionNote   string                      `gorm:"column:resolution_note" json:"resolution_note"`
	CreatedAt        time.Time                   `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

func (SaleRequest) TableName() string {
	return "sale_requests"
}

func (r *SaleRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// References reports whether unitID is part of the request.
func (r *SaleRequest) References(unitID uuid.UUID) bool {
	id := unitID.String()
	for _, u := range r.UnitIDs {
		if u == id {
			return true
		}
	}
	return false
}

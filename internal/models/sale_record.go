package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SaleSource tells which path produced a sales-ledger record.
type SaleSource string

const (
	SaleFromApproval       SaleSource = "approval"
	SaleFromReconciliation SaleSource = "reconciliation"
)

// SaleRecord is one sales-ledger entry. A unit is sold at most once.
type SaleRecord struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UnitID        uuid.UUID      `gorm:"column:unit_id;type:uuid;not null;uniqueIndex" json:"unit_id"`
	Identifier    string         `gorm:"column:identifier;not null" json:"identifier"`
	Brand         string         `gorm:"column:brand" json:"brand"`
	Model         string         `gorm:"column:model" json:"model"`
	Agency        string         `gorm:"column:agency" json:"agency"`
	RequestID     uuid.UUID      `gorm:"column:request_id;type:uuid;not null;index" json:"request_id"`
	AgentID       string         `gorm:"column:agent_id;not null;index" json:"agent_id"`
	AgentName     string         `gorm:"column:agent_name" json:"agent_name"`
	AgentEmail    string         `gorm:"column:agent_email" json:"agent_email"`
	CustomerName  string         `gorm:"column:customer_name" json:"customer_name"`
	CustomerTaxID string         `gorm:"column:customer_tax_id" json:"customer_tax_id"`
	OrderRef      string         `gorm:"column:order_ref;index" json:"order_ref"`
	Source        SaleSource     `gorm:"column:source;type:varchar(20);not null" json:"source"`
	Snapshot      datatypes.JSON `gorm:"column:snapshot" json:"snapshot"`
	SoldAt        time.Time      `gorm:"column:sold_at;index" json:"sold_at"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (SaleRecord) TableName() string {
	return "sale_records"
}

func (s *SaleRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TokenState is the state of a pooled eSIM token.
type TokenState string

const (
	TokenAvailable TokenState = "available"
	TokenIssued    TokenState = "issued"
)

// EsimToken is a single-use numeric credential.
type EsimToken struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Serial        string     `gorm:"column:serial;not null;uniqueIndex" json:"serial"`
	State         TokenState `gorm:"column:state;type:varchar(20);not null;default:'available';index" json:"state"`
	IssuedTo      *string    `gorm:"column:issued_to;index" json:"issued_to"`
	IssuedToName  *string    `gorm:"column:issued_to_name" json:"issued_to_name"`
	IssuedToEmail *string    `gorm:"column:issued_to_email" json:"issued_to_email"`
	CustomerName  *string    `gorm:"column:customer_name" json:"customer_name"`
	CustomerTaxID *string    `gorm:"column:customer_tax_id" json:"customer_tax_id"`
	OrderRef      *string    `gorm:"column:order_ref;index" json:"order_ref"`
	IssuedAt      *time.Time `gorm:"column:issued_at" json:"issued_at"`
	Notes         string     `gorm:"column:notes" json:"notes"`
	CreatedAt     time.Time  `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (EsimToken) TableName() string {
	return "esim_tokens"
}

func (t *EsimToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// AllocationStatus tracks an allocation record through return.
type AllocationStatus string

const (
	AllocationCompleted AllocationStatus = "completed"
	AllocationReturned  AllocationStatus = "returned"
)

// EsimAllocation records one issue of a token to a customer order.
type EsimAllocation struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TokenID       uuid.UUID        `gorm:"column:token_id;type:uuid;not null;index" json:"token_id"`
	Serial        string           `gorm:"column:serial;not null;index" json:"serial"`
	AgentID       string           `gorm:"column:agent_id;not null;index" json:"agent_id"`
	AgentName     string           `gorm:"column:agent_name" json:"agent_name"`
	AgentEmail    string           `gorm:"column:agent_email" json:"agent_email"`
	CustomerName  string           `gorm:"column:customer_name" json:"customer_name"`
	CustomerTaxID string           `gorm:"column:customer_tax_id" json:"customer_tax_id"`
	OrderRef      string           `gorm:"column:order_ref;not null;index" json:"order_ref"`
	Status        AllocationStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	ReturnedAt    *time.Time       `gorm:"column:returned_at" json:"returned_at"`
	ReturnedBy    *string          `gorm:"column:returned_by" json:"returned_by"`
	CreatedAt     time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (EsimAllocation) TableName() string {
	return "esim_allocations"
}

func (a *EsimAllocation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// MovementAction names an audited eSIM pool action.
type MovementAction string

const (
	MovementLoad   MovementAction = "load"
	MovementIssue  MovementAction = "issue"
	MovementReturn MovementAction = "return"
)

// EsimMovement is an append-only audit entry of the pool.
type EsimMovement struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TokenID    *uuid.UUID     `gorm:"column:token_id;type:uuid;index" json:"token_id"`
	Serial     string         `gorm:"column:serial" json:"serial"`
	Action     MovementAction `gorm:"column:action;type:varchar(20);not null" json:"action"`
	ActorID    string         `gorm:"column:actor_id" json:"actor_id"`
	ActorEmail string         `gorm:"column:actor_email" json:"actor_email"`
	ActorName  string         `gorm:"column:actor_name" json:"actor_name"`
	Payload    datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (EsimMovement) TableName() string {
	return "esim_movements"
}

func (m *EsimMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

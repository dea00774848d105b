package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnitState is the lifecycle position of an inventory unit.
type UnitState string

const (
	UnitAvailable UnitState = "available"
	UnitLocked    UnitState = "locked"
	UnitReserved  UnitState = "reserved"
	UnitRequested UnitState = "requested"
	UnitSold      UnitState = "sold"
)

var unitTransitions = map[UnitState][]UnitState{
	UnitAvailable: {UnitLocked, UnitReserved},
	UnitLocked:    {UnitRequested, UnitAvailable},
	UnitRequested: {UnitSold, UnitAvailable},
	UnitReserved:  {UnitRequested, UnitAvailable, UnitSold},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s UnitState) CanTransitionTo(next UnitState) bool {
	for _, n := range unitTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal is true only for sold units.
func (s UnitState) Terminal() bool {
	return s == UnitSold
}

// Valid reports whether s is one of the known states.
func (s UnitState) Valid() bool {
	switch s {
	case UnitAvailable, UnitLocked, UnitReserved, UnitRequested, UnitSold:
		return true
	}
	return false
}

// IdentifierKind tells whether a unit is tracked by IMEI or by a serial number.
type IdentifierKind string

const (
	IdentifierIMEI   IdentifierKind = "imei"
	IdentifierSerial IdentifierKind = "serial"
)

// Unit is one inventory item. Holder columns (HeldBy*, AssignedEvent, RequestID)
// are written only through ledger claims so they always agree with State.
type Unit struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Identifier     string         `gorm:"column:identifier;not null;index" json:"identifier"`
	IdentifierKind IdentifierKind `gorm:"column:identifier_kind;type:varchar(10);not null;default:'imei'" json:"identifier_kind"`
	Brand          string         `gorm:"column:brand;not null" json:"brand"`
	Model          string         `gorm:"column:model;not null" json:"model"`
	Agency         string         `gorm:"column:agency" json:"agency"`
	State          UnitState      `gorm:"column:state;type:varchar(20);not null;default:'available';index" json:"state"`
	HeldBy         *string        `gorm:"column:held_by;index" json:"held_by"`
	HeldByName     *string        `gorm:"column:held_by_name" json:"held_by_name"`
	HeldAt         *time.Time     `gorm:"column:held_at" json:"held_at"`
	AssignedEvent  *uuid.UUID     `gorm:"column:assigned_event;type:uuid;index" json:"assigned_event"`
	RequestID      *uuid.UUID     `gorm:"column:request_id;type:uuid;index" json:"request_id"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Unit) TableName() string {
	return "units"
}

func (u *Unit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HolderID returns the holder id or "" when nobody holds the unit.
func (u *Unit) HolderID() string {
	if u.HeldBy == nil {
		return ""
	}
	return *u.HeldBy
}

// InEvent reports whether the unit is assigned to eventID.
func (u *Unit) InEvent(eventID uuid.UUID) bool {
	return u.AssignedEvent != nil && *u.AssignedEvent == eventID
}

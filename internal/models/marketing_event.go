package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MarketingEvent is a scheduled activity that can pre-reserve units.
type MarketingEvent struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title           string                      `gorm:"column:title;not null" json:"title"`
	Date            time.Time                   `gorm:"column:date;not null;index" json:"date"`
	Location        string                      `gorm:"column:location" json:"location"`
	Description     string                      `gorm:"column:description" json:"description"`
	InvitedAgents   datatypes.JSONSlice[string] `gorm:"column:invited_agents" json:"invited_agents"`
	AssignedUnitIDs datatypes.JSONSlice[string] `gorm:"column:assigned_unit_ids" json:"assigned_unit_ids"`
	CreatedBy       string                      `gorm:"column:created_by" json:"created_by"`
	CreatedAt       time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

func (MarketingEvent) TableName() string {
	return "marketing_events"
}

func (e *MarketingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Invites reports whether any of the given handles (id, email) is on the invited list.
// Matching is case-insensitive and ignores surrounding spaces.
func (e *MarketingEvent) Invites(handles ...string) bool {
	for _, inv := range e.InvitedAgents {
		inv = strings.ToLower(strings.TrimSpace(inv))
		if inv == "" {
			continue
		}
		for _, h := range handles {
			if h != "" && inv == strings.ToLower(strings.TrimSpace(h)) {
				return true
			}
		}
	}
	return false
}

// HasUnit reports whether unitID is on the assigned list.
func (e *MarketingEvent) HasUnit(unitID string) bool {
	for _, id := range e.AssignedUnitIDs {
		if id == unitID {
			return true
		}
	}
	return false
}

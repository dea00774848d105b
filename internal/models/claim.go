package models

import (
	"time"

	"github.com/google/uuid"
)

// Claim is the holder view of a unit for one state. Each state allows exactly
// one shape of holder columns:
//
//	available  nothing
//	locked     holder + held_at
//	reserved   event
//	requested  request + holder (+ originating event, when sold from a reservation)
//	sold       request (provenance only)
type Claim struct {
	State      UnitState
	HolderID   string
	HolderName string
	At         *time.Time
	EventID    *uuid.UUID
	RequestID  *uuid.UUID
}

// Columns renders every holder column so a write never leaves a stale one behind.
func (c Claim) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"state":          c.State,
		"held_by":        nil,
		"held_by_name":   nil,
		"held_at":        nil,
		"assigned_event": nil,
		"request_id":     nil,
	}
	if c.HolderID != "" {
		cols["held_by"] = c.HolderID
		cols["held_by_name"] = c.HolderName
	}
	if c.At != nil {
		cols["held_at"] = *c.At
	}
	if c.EventID != nil {
		cols["assigned_event"] = *c.EventID
	}
	if c.RequestID != nil {
		cols["request_id"] = *c.RequestID
	}
	return cols
}

// Valid reports whether the claim is a legal shape for its state.
func (c Claim) Valid() bool {
	holder := c.HolderID != ""
	switch c.State {
	case UnitAvailable:
		return !holder && c.At == nil && c.EventID == nil && c.RequestID == nil
	case UnitLocked:
		return holder && c.At != nil && c.EventID == nil && c.RequestID == nil
	case UnitReserved:
		return !holder && c.EventID != nil && c.RequestID == nil
	case UnitRequested:
		return holder && c.RequestID != nil
	case UnitSold:
		return !holder && c.At == nil && c.EventID == nil
	}
	return false
}

// Claim reads the unit's holder columns back as a tagged claim.
func (u *Unit) Claim() Claim {
	c := Claim{
		State:     u.State,
		At:        u.HeldAt,
		EventID:   u.AssignedEvent,
		RequestID: u.RequestID,
	}
	if u.HeldBy != nil {
		c.HolderID = *u.HeldBy
	}
	if u.HeldByName != nil {
		c.HolderName = *u.HeldByName
	}
	return c
}

// Consistent reports whether the stored holder columns agree with State.
func (u *Unit) Consistent() bool {
	return u.Claim().Valid()
}

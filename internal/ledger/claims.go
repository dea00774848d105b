package ledger

import (
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
)

// Claim is the tagged holder state written with every unit transition.
type Claim = models.Claim

// Free releases the unit: no holder, no event, no request.
func Free() Claim {
	return Claim{State: models.UnitAvailable}
}

// LockedBy stages the unit for a request by a.
func LockedBy(a auth.Actor, at time.Time) Claim {
	return Claim{State: models.UnitLocked, HolderID: a.ID, HolderName: a.Label(), At: &at}
}

// ReservedFor assigns the unit to an event.
func ReservedFor(eventID uuid.UUID) Claim {
	return Claim{State: models.UnitReserved, EventID: &eventID}
}

// RequestedBy ties the unit to a pending request. origin is the event the unit
// was reserved under, if any, so a rejection can clean the event's list.
func RequestedBy(requestID uuid.UUID, holder auth.Actor, at time.Time, origin *uuid.UUID) Claim {
	return Claim{
		State:      models.UnitRequested,
		HolderID:   holder.ID,
		HolderName: holder.Label(),
		At:         &at,
		EventID:    origin,
		RequestID:  &requestID,
	}
}

// SoldOut is terminal; only the request id is kept for provenance.
func SoldOut(requestID uuid.UUID) Claim {
	return Claim{State: models.UnitSold, RequestID: &requestID}
}

// Restore returns a claim equal to the unit's current holder view.
func Restore(u *models.Unit) Claim {
	return u.Claim()
}

// NotSold lists every state a forced sale may start from.
var NotSold = []models.UnitState{models.UnitAvailable, models.UnitLocked, models.UnitReserved, models.UnitRequested}

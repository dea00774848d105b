package events

import "stockdesk-backend/internal/pkg/apperr"

var (
	ErrEventNotFound    = apperr.NotFound("Event not found")
	ErrEventFields      = apperr.Validation("Event title and date are required")
	ErrBadInvite        = apperr.Validation("Invited agents must be agent ids or email addresses")
	ErrNoUnits          = apperr.Validation("No units to reserve")
	ErrUnitsMissing     = apperr.NotFound("Units not found")
	ErrCrossEvent       = apperr.Conflict("Units already assigned to another event")
	ErrUnitsUnavailable = apperr.Conflict("Units are not available for reservation")
	ErrReserveRace      = apperr.Conflict("Units changed while reserving; nothing was reserved")
	ErrNotInvited       = apperr.Forbidden("You are not invited to this event")
	ErrUnitInRequest    = apperr.Forbidden("Unit is part of a pending request")
	ErrUnitSold         = apperr.AlreadyTerminal("Unit is already sold")
	ErrNotInEvent       = apperr.NotFound("Unit is not assigned to this event")
)

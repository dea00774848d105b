package locks

import "stockdesk-backend/internal/pkg/apperr"

var (
	ErrNotAvailable   = apperr.Conflict("Unit is not available")
	ErrHeldByOther    = apperr.Forbidden("Unit is held by another agent")
	ErrPendingRequest = apperr.Forbidden("Unit is part of a pending request; reject the request first")
	ErrReserved       = apperr.Forbidden("Unit is reserved for an event; release it from the event")
	ErrSold           = apperr.AlreadyTerminal("Unit is already sold")
)

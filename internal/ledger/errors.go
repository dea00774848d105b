package ledger

import "stockdesk-backend/internal/pkg/apperr"

var (
	ErrUnitNotFound     = apperr.NotFound("Unit not found")
	ErrUnitHeld         = apperr.Conflict("Unit is no longer available")
	ErrUnitInRequest    = apperr.Conflict("Unit is part of a pending request")
	ErrNothingToImport  = apperr.Validation("No rows to import")
	ErrIdentifierNeeded = apperr.Validation("identifier is required")
)

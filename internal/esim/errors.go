package esim

import "stockdesk-backend/internal/pkg/apperr"

var (
	ErrNoSerials        = apperr.Validation("No serials found in the pasted text")
	ErrMissingFields    = apperr.Validation("Missing allocation fields")
	ErrOrderHasEsim     = apperr.Conflict("Order already has an eSIM issued")
	ErrPoolExhausted    = apperr.Exhausted("No eSIM available in the pool")
	ErrAllocationRace   = apperr.Conflict("Could not claim an eSIM; try again")
	ErrTokenNotFound    = apperr.NotFound("eSIM not found")
	ErrAlreadyAvailable = apperr.AlreadyTerminal("eSIM is already available")
	ErrNotHolder        = apperr.Forbidden("eSIM was issued by another agent")
	ErrReturnRace       = apperr.Conflict("eSIM changed while returning; refresh and retry")
	ErrInvalidPurgeDay  = apperr.Validation("A load date is required")
)

package requests

import "stockdesk-backend/internal/pkg/apperr"

var (
	ErrRequestNotFound   = apperr.NotFound("Request not found")
	ErrNoUnits           = apperr.Validation("At least one unit is required")
	ErrDuplicateUnits    = apperr.Validation("A unit appears more than once in the request")
	ErrUnitsMissing      = apperr.NotFound("Units not found")
	ErrUnitsNotHeld      = apperr.Conflict("Units are not held by you")
	ErrIncomplete        = apperr.Conflict("Submission could not move every unit; request closed")
	ErrAlreadyResolved   = apperr.AlreadyTerminal("Request is already resolved")
	ErrResolutionRunning = apperr.Conflict("Request is being resolved by someone else")
	ErrNotApproved       = apperr.Conflict("Request is not approved")
)

// Reason codes carried by per-unit failures.
const (
	ReasonAlreadySold  = "already_sold"
	ReasonNotFound     = "not_found"
	ReasonOtherRequest = "other_request"
	ReasonConflict     = "conflict"
	ReasonNotRequested = "not_requested"
)

const incompleteSubmissionNote = "incomplete submission"

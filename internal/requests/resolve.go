package requests

import (
	"context"
	"errors"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/guard"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ItemFailure is one unit a resolution could not apply to.
type ItemFailure struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Outcome is the per-unit result of resolving a request.
type Outcome struct {
	RequestID uuid.UUID           `json:"request_id"`
	State     models.RequestState `json:"state"`
	Succeeded []string            `json:"succeeded"`
	Failed    []ItemFailure       `json:"failed"`
	Skipped   []string            `json:"skipped,omitempty"`
}

func newOutcome(id uuid.UUID) *Outcome {
	return &Outcome{RequestID: id, Succeeded: []string{}, Failed: []ItemFailure{}}
}

// GuardKey is the reentrancy flag name shared by approval and reconciliation.
func GuardKey(requestID uuid.UUID) string {
	return "request:" + requestID.String()
}

func (s *Service) hold(ctx context.Context, id uuid.UUID) (func(), error) {
	if s.Guard == nil {
		return func() {}, nil
	}
	release, err := s.Guard.TryAcquire(ctx, GuardKey(id))
	if errors.Is(err, guard.ErrBusy) {
		return nil, ErrResolutionRunning.WithIDs(id.String())
	}
	return release, err
}

// Approve sells every unit of a Pending request and flips it to Approved.
// Units already sold are reported as already_sold and skipped, so a retry
// after a partial approval finishes the job without touching them. Only units
// still Requested under this request are sold; anything else is reported as
// not_requested and left alone.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Outcome, error) {
	release, err := s.hold(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State != models.RequestPending {
		return nil, ErrAlreadyResolved.WithIDs(id.String())
	}

	out := newOutcome(id)
	unitIDs, bad := parseIDs(req.UnitIDs)
	for _, raw := range bad {
		out.Failed = append(out.Failed, ItemFailure{ID: raw, Kind: ReasonNotFound, Reason: "malformed unit id"})
	}
	units, err := s.Ledger.GetMany(ctx, unitIDs)
	if err != nil {
		return nil, err
	}
	for _, uid := range unitIDs {
		u, ok := units[uid]
		if !ok {
			out.Failed = append(out.Failed, ItemFailure{ID: uid.String(), Kind: ReasonNotFound, Reason: "unit no longer exists"})
			continue
		}
		if u.State == models.UnitSold {
			out.Failed = append(out.Failed, ItemFailure{ID: uid.String(), Kind: ReasonAlreadySold, Reason: "unit is already sold"})
			continue
		}
		if u.RequestID != nil && *u.RequestID != id {
			out.Failed = append(out.Failed, ItemFailure{ID: uid.String(), Kind: ReasonOtherRequest, Reason: "unit belongs to another request"})
			continue
		}
		if u.State != models.UnitRequested || u.RequestID == nil {
			out.Failed = append(out.Failed, ItemFailure{ID: uid.String(), Kind: ReasonNotRequested, Reason: "unit is no longer requested by this request"})
			continue
		}
		sold, err := s.Ledger.Transition(ctx, uid,
			ledger.Expect{States: []models.UnitState{models.UnitRequested}, Request: &id},
			ledger.SoldOut(id))
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				log.Ctx(ctx).Error().Err(err).Str("request_id", id.String()).Str("unit_id", uid.String()).Msg("Approval write failed")
			}
			out.Failed = append(out.Failed, failureFor(uid, err))
			continue
		}
		if _, err := s.RecordSale(ctx, req, u, sold, models.SaleFromApproval); err != nil {
			// the unit is sold; reconciliation emits the missing record
			log.Ctx(ctx).Error().Err(err).Str("request_id", id.String()).Str("unit_id", uid.String()).Msg("Sale record write failed")
		}
		out.Succeeded = append(out.Succeeded, uid.String())
	}

	flipped, err := s.close(ctx, id, models.RequestApproved, actor.ID, "")
	if err != nil {
		return nil, err
	}
	out.State = models.RequestApproved
	if !flipped {
		log.Ctx(ctx).Warn().Str("request_id", id.String()).Msg("Request was not pending when approval closed it")
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out.State = current.State
	}
	log.Ctx(ctx).Info().Str("request_id", id.String()).Str("actor", actor.ID).
		Int("sold", len(out.Succeeded)).Int("failed", len(out.Failed)).Msg("Sale request approved")
	return out, nil
}

// Reject closes a Pending request and fully releases its Requested units to
// Available. Units are not returned to their lock; the agent re-locks to retry.
// The request flips first so a crash mid-release leaves only orphans that
// reconciliation frees.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor auth.Actor, note string) (*Outcome, error) {
	release, err := s.hold(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State != models.RequestPending {
		return nil, ErrAlreadyResolved.WithIDs(id.String())
	}
	flipped, err := s.close(ctx, id, models.RequestRejected, actor.ID, note)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, ErrAlreadyResolved.WithIDs(id.String())
	}

	out := newOutcome(id)
	out.State = models.RequestRejected
	unitIDs, bad := parseIDs(req.UnitIDs)
	out.Skipped = append(out.Skipped, bad...)
	units, err := s.Ledger.GetMany(ctx, unitIDs)
	if err != nil {
		return nil, err
	}
	for _, uid := range unitIDs {
		u, ok := units[uid]
		if !ok || u.State != models.UnitRequested || u.RequestID == nil || *u.RequestID != id {
			out.Skipped = append(out.Skipped, uid.String())
			continue
		}
		if _, err := s.ReleaseUnit(ctx, u); err != nil {
			out.Failed = append(out.Failed, failureFor(uid, err))
			continue
		}
		out.Succeeded = append(out.Succeeded, uid.String())
	}
	log.Ctx(ctx).Info().Str("request_id", id.String()).Str("actor", actor.ID).
		Int("released", len(out.Succeeded)).Int("skipped", len(out.Skipped)).Msg("Sale request rejected")
	return out, nil
}

// ReleaseUnit frees a Requested unit and drops it from its originating
// event's list (best effort).
func (s *Service) ReleaseUnit(ctx context.Context, u *models.Unit) (*models.Unit, error) {
	want := ledger.Expect{States: []models.UnitState{models.UnitRequested}, Request: u.RequestID}
	freed, err := s.Ledger.Transition(ctx, u.ID, want, ledger.Free())
	if err != nil {
		return nil, err
	}
	if u.AssignedEvent != nil && s.Events != nil {
		if err := s.Events.DetachUnit(ctx, *u.AssignedEvent, u.ID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("event_id", u.AssignedEvent.String()).Str("unit_id", u.ID.String()).Msg("Could not detach unit from event")
		}
	}
	return freed, nil
}

func failureFor(id uuid.UUID, err error) ItemFailure {
	kind := ReasonConflict
	if apperr.KindOf(err) == apperr.KindNotFound {
		kind = ReasonNotFound
	}
	return ItemFailure{ID: id.String(), Kind: kind, Reason: err.Error()}
}

func parseIDs(raw []string) ([]uuid.UUID, []string) {
	ids := make([]uuid.UUID, 0, len(raw))
	var bad []string
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			bad = append(bad, r)
			continue
		}
		ids = append(ids, id)
	}
	return ids, bad
}

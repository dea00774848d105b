package events

import (
	"context"
	"errors"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReserveResult lists what a batch reservation did.
type ReserveResult struct {
	EventID  uuid.UUID `json:"event_id"`
	Reserved []string  `json:"reserved"`
	Skipped  []string  `json:"skipped"`
}

// ReserveBatch assigns units to the event. Overlap with any other event, or a
// unit that is neither Available nor already reserved here, aborts the batch
// before any unit changes.
func (s *Service) ReserveBatch(ctx context.Context, actor auth.Actor, eventID uuid.UUID, unitIDs []uuid.UUID) (*ReserveResult, error) {
	ids := dedupe(unitIDs)
	if len(ids) == 0 {
		return nil, ErrNoUnits
	}
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}

	// Cross-event scan over every other event's list.
	others, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	owner := map[string]uuid.UUID{}
	for i := range others {
		if others[i].ID == eventID {
			continue
		}
		for _, uid := range others[i].AssignedUnitIDs {
			owner[uid] = others[i].ID
		}
	}

	units, err := s.Ledger.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing, overlap, unavailable []string
	var todo []uuid.UUID
	res := &ReserveResult{EventID: eventID, Reserved: []string{}, Skipped: []string{}}
	for _, id := range ids {
		u, ok := units[id]
		if !ok {
			missing = append(missing, id.String())
			continue
		}
		if _, taken := owner[id.String()]; taken || (u.AssignedEvent != nil && *u.AssignedEvent != eventID) {
			overlap = append(overlap, id.String())
			continue
		}
		switch {
		case u.State == models.UnitReserved && u.AssignedEvent != nil && *u.AssignedEvent == eventID:
			res.Skipped = append(res.Skipped, id.String())
		case u.State == models.UnitAvailable:
			todo = append(todo, id)
		default:
			unavailable = append(unavailable, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, ErrUnitsMissing.WithIDs(missing...)
	}
	if len(overlap) > 0 {
		return nil, ErrCrossEvent.WithIDs(overlap...)
	}
	if len(unavailable) > 0 {
		return nil, ErrUnitsUnavailable.WithIDs(unavailable...)
	}

	done := make([]uuid.UUID, 0, len(todo))
	for _, id := range todo {
		if _, err := s.Ledger.Transition(ctx, id, ledger.Expect{States: []models.UnitState{models.UnitAvailable}}, ledger.ReservedFor(eventID)); err != nil {
			s.unreserve(ctx, eventID, done)
			if errors.Is(err, ledger.ErrUnitHeld) {
				return nil, ErrReserveRace.WithIDs(id.String())
			}
			return nil, err
		}
		done = append(done, id)
		res.Reserved = append(res.Reserved, id.String())
	}

	if err := s.editUnits(ctx, eventID, func(list []string) []string {
		return union(list, append(res.Reserved, res.Skipped...))
	}); err != nil {
		s.unreserve(ctx, eventID, done)
		return nil, err
	}
	log.Info().Str("event_id", eventID.String()).Str("actor", actor.ID).
		Int("reserved", len(res.Reserved)).Int("skipped", len(res.Skipped)).Msg("Units reserved for event")
	return res, nil
}

// unreserve reverts units this call reserved after a later write failed.
func (s *Service) unreserve(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) {
	for _, id := range ids {
		want := ledger.Expect{States: []models.UnitState{models.UnitReserved}, Event: &eventID}
		if _, err := s.Ledger.Transition(ctx, id, want, ledger.Free()); err != nil {
			log.Error().Err(err).Str("event_id", eventID.String()).Str("unit_id", id.String()).Msg("Could not undo reservation")
		}
	}
}

// Release hands one unit back from the event. Invited agents and privileged
// actors may release; a unit in a pending request must be rejected first.
func (s *Service) Release(ctx context.Context, actor auth.Actor, eventID, unitID uuid.UUID) (*models.Unit, error) {
	ev, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !ev.Invites(actor.ID, actor.Email) {
		return nil, ErrNotInvited.WithIDs(eventID.String())
	}
	listed := ev.HasUnit(unitID.String())
	drop := func() {
		if !listed {
			return
		}
		if err := s.DetachUnit(ctx, eventID, unitID); err != nil {
			log.Warn().Err(err).Str("event_id", eventID.String()).Str("unit_id", unitID.String()).Msg("Could not drop unit from event")
		}
	}

	u, err := s.Ledger.Get(ctx, unitID)
	if errors.Is(err, ledger.ErrUnitNotFound) {
		drop()
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	mine := u.AssignedEvent != nil && *u.AssignedEvent == eventID

	switch {
	case u.State == models.UnitRequested:
		return nil, ErrUnitInRequest.WithIDs(unitID.String())
	case u.State == models.UnitSold:
		drop()
		return nil, ErrUnitSold.WithIDs(unitID.String())
	case u.State == models.UnitReserved && mine:
		want := ledger.Expect{States: []models.UnitState{models.UnitReserved}, Event: &eventID}
		u, err = s.Ledger.Transition(ctx, unitID, want, ledger.Free())
		if err != nil {
			return u, err
		}
		drop()
		log.Info().Str("event_id", eventID.String()).Str("unit_id", unitID.String()).Str("actor", actor.ID).Msg("Unit released from event")
		return u, nil
	case listed:
		// Stale entry: the unit moved on without the list being cleaned.
		drop()
		return u, nil
	default:
		return nil, ErrNotInEvent.WithIDs(unitID.String())
	}
}

// VisibleUnits is the reserved stock actor may sell: units reserved under an
// event actor is invited to. Privileged actors see every reservation.
func (s *Service) VisibleUnits(ctx context.Context, actor auth.Actor) ([]models.Unit, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	invited := map[uuid.UUID]bool{}
	for i := range all {
		if actor.Privileged() || all[i].Invites(actor.ID, actor.Email) {
			invited[all[i].ID] = true
		}
	}
	reserved, err := s.Ledger.ByState(ctx, models.UnitReserved)
	if err != nil {
		return nil, err
	}
	out := make([]models.Unit, 0, len(reserved))
	for _, u := range reserved {
		if u.AssignedEvent != nil && invited[*u.AssignedEvent] {
			out = append(out, u)
		}
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

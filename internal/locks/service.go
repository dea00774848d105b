// Package locks grants and revokes the advisory hold an agent takes on a unit
// before building a sale request.
package locks

import (
	"context"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the lock manager. TTL <= 0 means locks never expire.
type Service struct {
	Ledger *ledger.Service
	TTL    time.Duration
}

// Acquire locks an Available unit for actor. Any other state is a Conflict and
// leaves the unit untouched. Two actors reading the same Available snapshot
// race on the conditional write; the loser gets Conflict.
func (s *Service) Acquire(ctx context.Context, unitID uuid.UUID, actor auth.Actor) (*models.Unit, error) {
	u, err := s.Ledger.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if u.State != models.UnitAvailable {
		log.Warn().Str("unit_id", unitID.String()).Str("actor", actor.ID).Str("state", string(u.State)).Msg("Lock refused")
		return nil, ErrNotAvailable.WithIDs(unitID.String())
	}
	locked, err := s.Ledger.Transition(ctx, unitID,
		ledger.Expect{States: []models.UnitState{models.UnitAvailable}},
		ledger.LockedBy(actor, s.Ledger.Now()))
	if err != nil {
		return nil, err
	}
	return locked, nil
}

// Release frees a unit locked by actor (or by anyone, for privileged actors).
// Releasing an Available unit is a no-op.
func (s *Service) Release(ctx context.Context, unitID uuid.UUID, actor auth.Actor) (*models.Unit, error) {
	u, err := s.Ledger.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	id := unitID.String()
	switch u.State {
	case models.UnitAvailable:
		return u, nil
	case models.UnitSold:
		return nil, ErrSold.WithIDs(id)
	case models.UnitRequested:
		return nil, ErrPendingRequest.WithIDs(id)
	case models.UnitReserved:
		return nil, ErrReserved.WithIDs(id)
	}
	holder := u.HolderID()
	if holder != actor.ID && !actor.Privileged() {
		return nil, ErrHeldByOther.WithIDs(id)
	}
	freed, err := s.Ledger.Transition(ctx, unitID,
		ledger.Expect{States: []models.UnitState{models.UnitLocked}, HeldBy: holder},
		ledger.Free())
	if err != nil {
		return nil, err
	}
	if holder != actor.ID {
		log.Warn().Str("unit_id", id).Str("actor", actor.ID).Str("holder", holder).Msg("Lock released by override")
	}
	return freed, nil
}

// HeldBy lists the units actor currently has locked.
func (s *Service) HeldBy(ctx context.Context, actor auth.Actor) ([]models.Unit, error) {
	return s.Ledger.List(ctx, ledger.Filter{State: models.UnitLocked, HeldBy: actor.ID})
}

// ExpireStale releases locks older than TTL. Each release is conditional on the
// lock still being the one observed, so a lock re-taken meanwhile survives.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s.TTL <= 0 {
		return 0, nil
	}
	cutoff := s.Ledger.Now().Add(-s.TTL)
	locked, err := s.Ledger.ByState(ctx, models.UnitLocked)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, u := range locked {
		if u.HeldAt == nil || !u.HeldAt.Before(cutoff) {
			continue
		}
		_, err := s.Ledger.Transition(ctx, u.ID,
			ledger.Expect{States: []models.UnitState{models.UnitLocked}, HeldBy: u.HolderID(), HeldBefore: &cutoff},
			ledger.Free())
		if err != nil {
			continue
		}
		expired++
		log.Warn().Str("unit_id", u.ID.String()).Str("holder", u.HolderID()).Time("held_at", *u.HeldAt).Msg("Stale lock expired")
	}
	return expired, nil
}

// RunSweeper calls ExpireStale every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.TTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx); err != nil {
				log.Error().Err(err).Msg("Lock sweep failed")
			}
		}
	}
}

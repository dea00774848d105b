package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns the unit collection. Every state change goes through Transition.
type Service struct {
	DB    *gorm.DB
	Feed  changefeed.Publisher
	Clock clock.Clock
}

// Expect narrows a conditional write to what the caller observed.
type Expect struct {
	States  []models.UnitState
	HeldBy  string
	Event   *uuid.UUID
	Request *uuid.UUID
	// HeldBefore matches locks taken strictly before this instant.
	HeldBefore *time.Time
	// Force skips the state-machine check; reconciliation repairs use it.
	Force bool
}

func (s *Service) Now() time.Time {
	return clock.OrSystem(s.Clock).Now()
}

func (s *Service) emit(ctx context.Context, op changefeed.Op, u *models.Unit) {
	changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Units, u.ID.String(), op, u, s.Now()))
}

// Get returns one unit or ErrUnitNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Unit, error) {
	var u models.Unit
	if err := s.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound.WithIDs(id.String())
		}
		return nil, err
	}
	return &u, nil
}

// GetMany loads the given units keyed by id; missing ids are simply absent.
func (s *Service) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Unit, error) {
	out := make(map[uuid.UUID]*models.Unit, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var units []models.Unit
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&units).Error; err != nil {
		return nil, err
	}
	for i := range units {
		out[units[i].ID] = &units[i]
	}
	return out, nil
}

// ByState returns every unit in one of states, oldest first.
func (s *Service) ByState(ctx context.Context, states ...models.UnitState) ([]models.Unit, error) {
	var units []models.Unit
	err := s.DB.WithContext(ctx).Where("state IN ?", states).Order("created_at ASC").Find(&units).Error
	return units, err
}

// Transition applies next to the unit only if it still matches want. Zero rows
// affected is re-read: a vanished unit is NotFound, anything else Conflict.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, want Expect, next Claim) (*models.Unit, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("ledger: invalid %s claim for unit %s", next.State, id)
	}
	if !want.Force {
		for _, from := range want.States {
			if !from.CanTransitionTo(next.State) {
				return nil, fmt.Errorf("ledger: illegal transition %s -> %s", from, next.State)
			}
		}
	}

	q := s.DB.WithContext(ctx).Model(&models.Unit{}).Where("id = ?", id)
	if len(want.States) > 0 {
		q = q.Where("state IN ?", want.States)
	}
	if want.HeldBy != "" {
		q = q.Where("held_by = ?", want.HeldBy)
	}
	if want.Event != nil {
		q = q.Where("assigned_event = ?", *want.Event)
	}
	if want.Request != nil {
		q = q.Where("request_id = ?", *want.Request)
	}
	if want.HeldBefore != nil {
		q = q.Where("held_at < ?", *want.HeldBefore)
	}

	cols := next.Columns()
	cols["updated_at"] = s.Now()
	res := q.Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return current, ErrUnitHeld.WithIDs(id.String())
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info().Str("unit_id", id.String()).Str("state", string(u.State)).Msg("Unit transitioned")
	s.emit(ctx, changefeed.OpUpdate, u)
	return u, nil
}

// CountByState returns the number of units per state, zero-filled.
func (s *Service) CountByState(ctx context.Context) (map[models.UnitState]int64, error) {
	type row struct {
		State models.UnitState
		Total int64
	}
	var rows []row
	err := s.DB.WithContext(ctx).Model(&models.Unit{}).
		Select("state, COUNT(*) AS total").Group("state").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[models.UnitState]int64{
		models.UnitAvailable: 0, models.UnitLocked: 0, models.UnitReserved: 0,
		models.UnitRequested: 0, models.UnitSold: 0,
	}
	for _, r := range rows {
		out[r.State] = r.Total
	}
	return out, nil
}

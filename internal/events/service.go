// Package events manages marketing events and the units they reserve.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the event reservation manager.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	Feed   changefeed.Publisher
	Clock  clock.Clock
}

// EventInput is the editable part of an event.
type EventInput struct {
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	Location      string    `json:"location"`
	Description   string    `json:"description"`
	InvitedAgents []string  `json:"invited_agents"`
}

func (in *EventInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.Date.IsZero() {
		return ErrEventFields
	}
	invited := make([]string, 0, len(in.InvitedAgents))
	seen := map[string]bool{}
	for _, h := range in.InvitedAgents {
		h = strings.TrimSpace(h)
		k := strings.ToLower(h)
		if h == "" || seen[k] {
			continue
		}
		if !validation.IsValidHandle(h) {
			return ErrBadInvite.WithIDs(h)
		}
		seen[k] = true
		invited = append(invited, h)
	}
	in.InvitedAgents = invited
	return nil
}

func (s *Service) now() time.Time {
	return clock.OrSystem(s.Clock).Now()
}

func (s *Service) emit(ctx context.Context, op changefeed.Op, ev *models.MarketingEvent) {
	changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Events, ev.ID.String(), op, ev, s.now()))
}

// Create schedules a new event with no units.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in EventInput) (*models.MarketingEvent, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := s.now()
	ev := &models.MarketingEvent{
		Title:           in.Title,
		Date:            in.Date,
		Location:        in.Location,
		Description:     in.Description,
		InvitedAgents:   datatypes.JSONSlice[string](in.InvitedAgents),
		AssignedUnitIDs: datatypes.JSONSlice[string]{},
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.DB.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	log.Info().Str("event_id", ev.ID.String()).Str("actor", actor.ID).Msg("Event created")
	s.emit(ctx, changefeed.OpCreate, ev)
	return ev, nil
}

// Update replaces the editable fields. Assigned units are untouched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in EventInput) (*models.MarketingEvent, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Model(ev).Updates(map[string]interface{}{
		"title":          in.Title,
		"date":           in.Date,
		"location":       in.Location,
		"description":    in.Description,
		"invited_agents": datatypes.JSONSlice[string](in.InvitedAgents),
		"updated_at":     s.now(),
	}).Error
	if err != nil {
		return nil, err
	}
	ev, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, changefeed.OpUpdate, ev)
	return ev, nil
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.MarketingEvent, error) {
	var ev models.MarketingEvent
	if err := s.DB.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound.WithIDs(id.String())
		}
		return nil, err
	}
	return &ev, nil
}

// List returns every event, latest date first.
func (s *Service) List(ctx context.Context) ([]models.MarketingEvent, error) {
	var out []models.MarketingEvent
	err := s.DB.WithContext(ctx).Order("date DESC").Find(&out).Error
	return out, err
}

// ForAgent lists the events actor is invited to that have units to sell.
func (s *Service) ForAgent(ctx context.Context, actor auth.Actor) ([]models.MarketingEvent, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.MarketingEvent, 0, len(all))
	for i := range all {
		if len(all[i].AssignedUnitIDs) > 0 && all[i].Invites(actor.ID, actor.Email) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Invited reports whether actor is on the event's invited list. A missing
// event invites nobody.
func (s *Service) Invited(ctx context.Context, eventID uuid.UUID, actor auth.Actor) (bool, error) {
	ev, err := s.Get(ctx, eventID)
	if errors.Is(err, ErrEventNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ev.Invites(actor.ID, actor.Email), nil
}

// DetachUnit drops unitID from the event's assigned list.
func (s *Service) DetachUnit(ctx context.Context, eventID, unitID uuid.UUID) error {
	return s.editUnits(ctx, eventID, func(ids []string) []string {
		return without(ids, unitID.String())
	})
}

// editUnits rewrites the assigned list of one event under a row lock where
// the store has one.
func (s *Service) editUnits(ctx context.Context, eventID uuid.UUID, edit func([]string) []string) error {
	var ev models.MarketingEvent
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&ev, "id = ?", eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound.WithIDs(eventID.String())
			}
			return err
		}
		next := datatypes.JSONSlice[string](edit(append([]string(nil), ev.AssignedUnitIDs...)))
		if next == nil {
			next = datatypes.JSONSlice[string]{}
		}
		ev.AssignedUnitIDs = next
		ev.UpdatedAt = s.now()
		return tx.Model(&models.MarketingEvent{}).Where("id = ?", eventID).Updates(map[string]interface{}{
			"assigned_unit_ids": next,
			"updated_at":        ev.UpdatedAt,
		}).Error
	})
	if err != nil {
		return err
	}
	s.emit(ctx, changefeed.OpUpdate, &ev)
	return nil
}

func without(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func union(ids []string, add []string) []string {
	seen := make(map[string]bool, len(ids)+len(add))
	out := make([]string, 0, len(ids)+len(add))
	for _, id := range append(ids, add...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

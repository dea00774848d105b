// Package requests creates and resolves sale requests and keeps the sales ledger.
package requests

import (
	"context"
	"errors"
	"strings"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/guard"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventDirectory is what the request engine needs from event reservations.
type EventDirectory interface {
	// Invited reports whether actor may sell from the event's reserved units.
	Invited(ctx context.Context, eventID uuid.UUID, actor auth.Actor) (bool, error)
	// DetachUnit drops unitID from the event's assigned list.
	DetachUnit(ctx context.Context, eventID, unitID uuid.UUID) error
}

// Service is the request engine.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	Guard  guard.Guard
	Events EventDirectory
	Feed   changefeed.Publisher
	Clock  clock.Clock
}

// CustomerInfo is the customer data attached to a request. Name, TaxID and
// OrderRef are required.
type CustomerInfo struct {
	Name            string `json:"name"`
	TaxID           string `json:"tax_id"`
	OrderRef        string `json:"order_ref"`
	DeliveryAddress string `json:"delivery_address"`
	IncludeSim      bool   `json:"include_sim"`
	SimNumber       string `json:"sim_number"`
	SendByEmail     bool   `json:"send_by_email"`
	Notes           string `json:"notes"`
}

func (ci CustomerInfo) validate() error {
	var missing []string
	if strings.TrimSpace(ci.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(ci.TaxID) == "" {
		missing = append(missing, "tax_id")
	}
	if strings.TrimSpace(ci.OrderRef) == "" {
		missing = append(missing, "order_ref")
	}
	if len(missing) > 0 {
		return apperr.Validation("Missing customer fields").WithIDs(missing...)
	}
	return nil
}

func (s *Service) now() time.Time {
	return clock.OrSystem(s.Clock).Now()
}

func (s *Service) emit(ctx context.Context, op changefeed.Op, r *models.SaleRequest) {
	changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Requests, r.ID.String(), op, r, s.now()))
}

// Submit bundles units held by actor into a Pending request. Every unit must be
// Locked by actor or Reserved under an event actor is invited to.
func (s *Service) Submit(ctx context.Context, unitIDs []uuid.UUID, actor auth.Actor, info CustomerInfo) (*models.SaleRequest, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	if len(unitIDs) == 0 {
		return nil, ErrNoUnits
	}
	seen := make(map[uuid.UUID]bool, len(unitIDs))
	for _, id := range unitIDs {
		if seen[id] {
			return nil, ErrDuplicateUnits.WithIDs(id.String())
		}
		seen[id] = true
	}

	units, err := s.Ledger.GetMany(ctx, unitIDs)
	if err != nil {
		return nil, err
	}
	var missing, notHeld []string
	for _, id := range unitIDs {
		u, ok := units[id]
		if !ok {
			missing = append(missing, id.String())
			continue
		}
		eligible, err := s.eligible(ctx, u, actor)
		if err != nil {
			return nil, err
		}
		if !eligible {
			notHeld = append(notHeld, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, ErrUnitsMissing.WithIDs(missing...)
	}
	if len(notHeld) > 0 {
		log.Ctx(ctx).Warn().Str("actor", actor.ID).Strs("unit_ids", notHeld).Msg("Submission refused")
		return nil, ErrUnitsNotHeld.WithIDs(notHeld...)
	}

	ids := make([]string, 0, len(unitIDs))
	for _, id := range unitIDs {
		ids = append(ids, id.String())
	}
	req := &models.SaleRequest{
		UnitIDs:          datatypes.JSONSlice[string](ids),
		RequestedBy:      actor.ID,
		RequestedByEmail: actor.Email,
		RequestedByName:  actor.Label(),
		CustomerName:     strings.TrimSpace(info.Name),
		CustomerTaxID:    strings.TrimSpace(info.TaxID),
		OrderRef:         strings.TrimSpace(info.OrderRef),
		DeliveryAddress:  info.DeliveryAddress,
		IncludeSim:       info.IncludeSim,
		SimNumber:        info.SimNumber,
		SendByEmail:      info.SendByEmail,
		Notes:            info.Notes,
		State:            models.RequestPending,
		CreatedAt:        s.now(),
		UpdatedAt:        s.now(),
	}
	if err := s.DB.WithContext(ctx).Create(req).Error; err != nil {
		return nil, err
	}
	s.emit(ctx, changefeed.OpCreate, req)

	moved := make([]*models.Unit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u := units[id]
		want := ledger.Expect{States: []models.UnitState{u.State}}
		var origin *uuid.UUID
		if u.State == models.UnitReserved {
			origin = u.AssignedEvent
			want.Event = origin
		} else {
			want.HeldBy = actor.ID
		}
		if _, err := s.Ledger.Transition(ctx, id, want, ledger.RequestedBy(req.ID, actor, s.now(), origin)); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("request_id", req.ID.String()).Str("unit_id", id.String()).Msg("Submission lost a unit, compensating")
			s.compensate(ctx, req, moved)
			if apperr.KindOf(err) == apperr.KindInternal {
				return nil, err
			}
			return nil, ErrIncomplete.WithIDs(id.String())
		}
		moved = append(moved, u)
	}

	log.Ctx(ctx).Info().Str("request_id", req.ID.String()).Str("actor", actor.ID).Int("units", len(ids)).Msg("Sale request submitted")
	return req, nil
}

func (s *Service) eligible(ctx context.Context, u *models.Unit, actor auth.Actor) (bool, error) {
	switch u.State {
	case models.UnitLocked:
		return u.HolderID() == actor.ID, nil
	case models.UnitReserved:
		if u.AssignedEvent == nil || s.Events == nil {
			return false, nil
		}
		return s.Events.Invited(ctx, *u.AssignedEvent, actor)
	}
	return false, nil
}

// compensate puts already-moved units back to the claim they had before the
// submission and closes the request.
func (s *Service) compensate(ctx context.Context, req *models.SaleRequest, moved []*models.Unit) {
	for _, prior := range moved {
		_, err := s.Ledger.Transition(ctx, prior.ID,
			ledger.Expect{States: []models.UnitState{models.UnitRequested}, Request: &req.ID, Force: true},
			ledger.Restore(prior))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("request_id", req.ID.String()).Str("unit_id", prior.ID.String()).Msg("Compensation failed; reconciliation will release the unit")
		}
	}
	if _, err := s.close(ctx, req.ID, models.RequestRejected, "", incompleteSubmissionNote); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("request_id", req.ID.String()).Msg("Could not close incomplete request")
	}
}

// close flips a Pending request to a terminal state. false means it was no longer Pending.
func (s *Service) close(ctx context.Context, id uuid.UUID, to models.RequestState, by, note string) (bool, error) {
	now := s.now()
	cols := map[string]interface{}{
		"state":           to,
		"resolved_at":     now,
		"resolution_note": note,
		"updated_at":      now,
	}
	if by != "" {
		cols["resolved_by"] = by
	}
	res := s.DB.WithContext(ctx).Model(&models.SaleRequest{}).
		Where("id = ? AND state = ?", id, models.RequestPending).Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if r, err := s.Get(ctx, id); err == nil {
		s.emit(ctx, changefeed.OpUpdate, r)
	}
	return true, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.SaleRequest, error) {
	var r models.SaleRequest
	if err := s.DB.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound.WithIDs(id.String())
		}
		return nil, err
	}
	return &r, nil
}

// RequestFilter narrows List. Empty fields match everything.
type RequestFilter struct {
	State       models.RequestState
	RequestedBy string
	OrderRef    string
}

// List returns requests, newest first.
func (s *Service) List(ctx context.Context, f RequestFilter) ([]models.SaleRequest, error) {
	q := s.DB.WithContext(ctx).Model(&models.SaleRequest{})
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.RequestedBy != "" {
		q = q.Where("requested_by = ?", f.RequestedBy)
	}
	if f.OrderRef != "" {
		q = q.Where("order_ref = ?", f.OrderRef)
	}
	var out []models.SaleRequest
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// MyRequests returns requests created by actor, matched by id or email.
func (s *Service) MyRequests(ctx context.Context, actor auth.Actor) ([]models.SaleRequest, error) {
	q := s.DB.WithContext(ctx).Where("requested_by = ?", actor.ID)
	if actor.Email != "" {
		q = q.Or("LOWER(requested_by_email) = ?", strings.ToLower(actor.Email))
	}
	var out []models.SaleRequest
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// Purge deletes every request document. Units still tied to a purged request
// are released by the next reconciliation pass.
func (s *Service) Purge(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&models.SaleRequest{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	res := s.DB.WithContext(ctx).Where("1 = 1").Delete(&models.SaleRequest{})
	if res.Error != nil {
		return 0, res.Error
	}
	for _, id := range ids {
		changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Requests, id.String(), changefeed.OpDelete, nil, s.now()))
	}
	log.Ctx(ctx).Warn().Int64("deleted", res.RowsAffected).Msg("Sale requests purged")
	return int(res.RowsAffected), nil
}

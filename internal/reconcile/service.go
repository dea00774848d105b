// Package reconcile repairs units whose state contradicts a resolved request.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockdesk-backend/internal/guard"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/requests"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionSold     = "sold"
	ActionRecorded = "sale_recorded"
	ActionReleased = "released"
)

// Repair is one correction made by a pass.
type Repair struct {
	RequestID string           `json:"request_id"`
	UnitID    string           `json:"unit_id"`
	From      models.UnitState `json:"from"`
	Action    string           `json:"action"`
}

// Report summarises one pass.
type Report struct {
	Requests int       `json:"requests"`
	Checked  int       `json:"checked"`
	Repairs  []Repair  `json:"repairs"`
	Skipped  []string  `json:"skipped"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
}

// Service runs reconciliation passes. Passes never overlap within a process;
// against approvals they are serialised per request through Guard.
type Service struct {
	Requests *requests.Service
	Ledger   *ledger.Service
	Guard    guard.Guard

	mu sync.Mutex
}

func (s *Service) hold(ctx context.Context, id uuid.UUID) (func(), bool, error) {
	if s.Guard == nil {
		return func() {}, true, nil
	}
	release, err := s.Guard.TryAcquire(ctx, requests.GuardKey(id))
	if errors.Is(err, guard.ErrBusy) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return release, true, nil
}

// Run makes one pass. It is idempotent: a second pass right after the first
// finds nothing to repair.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := &Report{Repairs: []Repair{}, Skipped: []string{}, Started: s.Ledger.Now()}
	approved, err := s.Requests.List(ctx, requests.RequestFilter{State: models.RequestApproved})
	if err != nil {
		return nil, err
	}
	for i := range approved {
		if err := s.approved(ctx, &approved[i], rep); err != nil {
			return rep, err
		}
	}
	if err := s.orphans(ctx, rep); err != nil {
		return rep, err
	}
	rep.Duration = s.Ledger.Now().Sub(rep.Started).String()

	if len(rep.Repairs) > 0 {
		log.Warn().Int("requests", rep.Requests).Int("repairs", len(rep.Repairs)).Strs("skipped", rep.Skipped).Msg("Reconciliation repaired drift")
	} else {
		log.Debug().Int("requests", rep.Requests).Int("checked", rep.Checked).Msg("Reconciliation clean")
	}
	return rep, nil
}

// approved sells every unit of an Approved request that the approval left
// behind, and emits sale records it failed to write.
func (s *Service) approved(ctx context.Context, req *models.SaleRequest, rep *Report) error {
	release, ok, err := s.hold(ctx, req.ID)
	if err != nil {
		return err
	}
	if !ok {
		rep.Skipped = append(rep.Skipped, req.ID.String())
		return nil
	}
	defer release()
	rep.Requests++

	ids := make([]uuid.UUID, 0, len(req.UnitIDs))
	for _, raw := range req.UnitIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	units, err := s.Ledger.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		u, ok := units[id]
		if !ok {
			continue
		}
		rep.Checked++
		// Units the approval skipped as belonging elsewhere stay with that request.
		if u.RequestID != nil && *u.RequestID != req.ID {
			continue
		}
		lg := log.With().Str("request_id", req.ID.String()).Str("unit_id", id.String()).Logger()

		if u.State != models.UnitSold {
			from := u.State
			sold, err := s.Ledger.Transition(ctx, id, ledger.Expect{States: ledger.NotSold, Force: true}, ledger.SoldOut(req.ID))
			if err != nil {
				lg.Error().Err(err).Str("from", string(from)).Msg("Reconciliation could not sell unit")
				continue
			}
			rep.Repairs = append(rep.Repairs, Repair{RequestID: req.ID.String(), UnitID: id.String(), From: from, Action: ActionSold})
			lg.Warn().Str("from", string(from)).Msg("Unit forced to sold for approved request")
			if _, err := s.Requests.RecordSale(ctx, req, u, sold, models.SaleFromReconciliation); err != nil {
				lg.Error().Err(err).Msg("Reconciliation sale record failed")
			}
			continue
		}

		wrote, err := s.Requests.RecordSale(ctx, req, u, u, models.SaleFromReconciliation)
		if err != nil {
			lg.Error().Err(err).Msg("Reconciliation sale record failed")
			continue
		}
		if wrote {
			rep.Repairs = append(rep.Repairs, Repair{RequestID: req.ID.String(), UnitID: id.String(), From: models.UnitSold, Action: ActionRecorded})
			lg.Warn().Msg("Missing sale record emitted")
		}
	}
	return nil
}

// orphans frees Requested units whose request is gone or was rejected.
func (s *Service) orphans(ctx context.Context, rep *Report) error {
	stuck, err := s.Ledger.ByState(ctx, models.UnitRequested)
	if err != nil {
		return err
	}
	for i := range stuck {
		u := &stuck[i]
		var reqID string
		if u.RequestID != nil {
			reqID = u.RequestID.String()
			req, err := s.Requests.Get(ctx, *u.RequestID)
			switch {
			case errors.Is(err, requests.ErrRequestNotFound):
			case err != nil:
				return err
			case req.State != models.RequestRejected:
				continue
			}
			release, ok, err := s.hold(ctx, *u.RequestID)
			if err != nil {
				return err
			}
			if !ok {
				rep.Skipped = append(rep.Skipped, reqID)
				continue
			}
			_, err = s.Requests.ReleaseUnit(ctx, u)
			release()
			if err != nil {
				log.Error().Err(err).Str("unit_id", u.ID.String()).Str("request_id", reqID).Msg("Reconciliation could not release orphan")
				continue
			}
		} else if _, err := s.Requests.ReleaseUnit(ctx, u); err != nil {
			log.Error().Err(err).Str("unit_id", u.ID.String()).Msg("Reconciliation could not release orphan")
			continue
		}
		rep.Repairs = append(rep.Repairs, Repair{RequestID: reqID, UnitID: u.ID.String(), From: models.UnitRequested, Action: ActionReleased})
		log.Warn().Str("unit_id", u.ID.String()).Str("request_id", reqID).Msg("Orphaned unit released")
	}
	return nil
}

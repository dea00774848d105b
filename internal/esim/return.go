package esim

import (
	"context"
	"errors"
	"strings"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var clearedHolder = map[string]interface{}{
	"state":           models.TokenAvailable,
	"issued_to":       nil,
	"issued_to_name":  nil,
	"issued_to_email": nil,
	"customer_name":   nil,
	"customer_tax_id": nil,
	"order_ref":       nil,
	"issued_at":       nil,
}

// ReturnToPool puts an Issued token back. Read, verify and write run in one
// transaction and the write is a compare-and-swap on the observed state and
// holder, so of two concurrent returns exactly one succeeds.
func (s *Service) ReturnToPool(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.EsimToken, error) {
	var before models.EsimToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&before, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound.WithIDs(id.String())
			}
			return err
		}
		if before.State == models.TokenAvailable {
			return ErrAlreadyAvailable.WithIDs(id.String())
		}
		holder := ""
		if before.IssuedTo != nil {
			holder = *before.IssuedTo
		}
		if holder != actor.ID && !actor.Privileged() {
			return ErrNotHolder.WithIDs(id.String())
		}

		cas := tx.Model(&models.EsimToken{}).Where("id = ? AND state = ?", id, models.TokenIssued)
		if before.IssuedTo == nil {
			cas = cas.Where("issued_to IS NULL")
		} else {
			cas = cas.Where("issued_to = ?", holder)
		}
		cols := make(map[string]interface{}, len(clearedHolder)+1)
		for k, v := range clearedHolder {
			cols[k] = v
		}
		cols["updated_at"] = s.now()
		res := cas.Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrReturnRace.WithIDs(id.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	after, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitToken(ctx, changefeed.OpUpdate, after)
	s.audit(ctx, models.MovementReturn, &id, before.Serial, actor, map[string]interface{}{
		"previous_holder": before.IssuedTo,
		"order_ref":       before.OrderRef,
	})
	s.markReturned(ctx, id, actor)
	log.Info().Str("token_id", id.String()).Str("actor", actor.ID).Msg("eSIM returned to pool")
	return after, nil
}

// markReturned flags the linked allocation record. Best effort.
func (s *Service) markReturned(ctx context.Context, tokenID uuid.UUID, actor auth.Actor) {
	var recs []models.EsimAllocation
	if err := s.DB.WithContext(ctx).Where("token_id = ? AND status = ?", tokenID, models.AllocationCompleted).Find(&recs).Error; err != nil {
		log.Warn().Err(err).Str("token_id", tokenID.String()).Msg("Allocation lookup failed on return")
		return
	}
	now := s.now()
	for i := range recs {
		err := s.DB.WithContext(ctx).Model(&recs[i]).Updates(map[string]interface{}{
			"status":      models.AllocationReturned,
			"returned_at": now,
			"returned_by": actor.ID,
			"updated_at":  now,
		}).Error
		if err != nil {
			log.Warn().Err(err).Str("allocation_id", recs[i].ID.String()).Msg("Allocation not marked returned")
			continue
		}
		recs[i].Status = models.AllocationReturned
		s.emitAllocation(ctx, changefeed.OpUpdate, &recs[i])
	}
}

// ReturnBySerial is ReturnToPool addressed by serial.
func (s *Service) ReturnBySerial(ctx context.Context, serial string, actor auth.Actor) (*models.EsimToken, error) {
	serial = strings.TrimSpace(serial)
	var t models.EsimToken
	if err := s.DB.WithContext(ctx).First(&t, "serial = ?", serial).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound.WithIDs(serial)
		}
		return nil, err
	}
	return s.ReturnToPool(ctx, t.ID, actor)
}

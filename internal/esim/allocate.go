package esim

import (
	"context"
	"errors"
	"strings"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AllocationInput is the customer order an eSIM is issued to.
type AllocationInput struct {
	OrderRef      string `json:"order_ref"`
	CustomerName  string `json:"customer_name"`
	CustomerTaxID string `json:"customer_tax_id"`
}

func (in AllocationInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.OrderRef) == "" {
		missing = append(missing, "order_ref")
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(in.CustomerTaxID) == "" {
		missing = append(missing, "customer_tax_id")
	}
	if len(missing) > 0 {
		return ErrMissingFields.WithIDs(missing...)
	}
	return nil
}

// Allocation is an issued token with its audit record.
type Allocation struct {
	Token  models.EsimToken      `json:"token"`
	Record models.EsimAllocation `json:"record"`
}

// Allocate issues one Available token to the order. An order gets at most one
// completed allocation; a second call is a Conflict.
func (s *Service) Allocate(ctx context.Context, actor auth.Actor, in AllocationInput) (*Allocation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.OrderRef = strings.TrimSpace(in.OrderRef)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerTaxID = strings.TrimSpace(in.CustomerTaxID)

	var prior int64
	err := s.DB.WithContext(ctx).Model(&models.EsimAllocation{}).
		Where("order_ref = ? AND status = ?", in.OrderRef, models.AllocationCompleted).Count(&prior).Error
	if err != nil {
		return nil, err
	}
	if prior > 0 {
		return nil, ErrOrderHasEsim.WithIDs(in.OrderRef)
	}

	token, err := s.claim(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	rec := &models.EsimAllocation{
		TokenID:       token.ID,
		Serial:        token.Serial,
		AgentID:       actor.ID,
		AgentName:     actor.Label(),
		AgentEmail:    actor.Email,
		CustomerName:  in.CustomerName,
		CustomerTaxID: in.CustomerTaxID,
		OrderRef:      in.OrderRef,
		Status:        models.AllocationCompleted,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		log.Error().Err(err).Str("token_id", token.ID.String()).Msg("Allocation record not written")
		return nil, err
	}

	// Two allocators can pass the prior check together. The earliest record
	// for the order keeps its token; later ones hand theirs back.
	var first models.EsimAllocation
	err = s.DB.WithContext(ctx).Where("order_ref = ? AND status = ?", in.OrderRef, models.AllocationCompleted).
		Order("created_at ASC").Order("id ASC").First(&first).Error
	if err == nil && first.ID != rec.ID {
		log.Warn().Str("order_ref", in.OrderRef).Str("token_id", token.ID.String()).Msg("Concurrent allocation for order, returning token")
		if _, rErr := s.ReturnToPool(ctx, token.ID, actor); rErr != nil {
			log.Error().Err(rErr).Str("token_id", token.ID.String()).Msg("Could not undo duplicate allocation")
		}
		return nil, ErrOrderHasEsim.WithIDs(in.OrderRef)
	}

	s.emitAllocation(ctx, changefeed.OpCreate, rec)
	s.audit(ctx, models.MovementIssue, &token.ID, token.Serial, actor, map[string]string{
		"order_ref":       in.OrderRef,
		"customer_name":   in.CustomerName,
		"customer_tax_id": in.CustomerTaxID,
	})
	log.Info().Str("token_id", token.ID.String()).Str("order_ref", in.OrderRef).Str("actor", actor.ID).Msg("eSIM issued")
	return &Allocation{Token: *token, Record: *rec}, nil
}

// claim flips one Available token to Issued. Losing the conditional write to
// another allocator moves on to a different token.
func (s *Service) claim(ctx context.Context, actor auth.Actor, in AllocationInput) (*models.EsimToken, error) {
	for attempt := 0; attempt < s.pickAttempts(); attempt++ {
		var candidate models.EsimToken
		err := s.DB.WithContext(ctx).Where("state = ?", models.TokenAvailable).
			Order("created_at ASC").First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolExhausted
		}
		if err != nil {
			return nil, err
		}
		now := s.now()
		res := s.DB.WithContext(ctx).Model(&models.EsimToken{}).
			Where("id = ? AND state = ?", candidate.ID, models.TokenAvailable).
			Updates(map[string]interface{}{
				"state":           models.TokenIssued,
				"issued_to":       actor.ID,
				"issued_to_name":  actor.Label(),
				"issued_to_email": actor.Email,
				"customer_name":   in.CustomerName,
				"customer_tax_id": in.CustomerTaxID,
				"order_ref":       in.OrderRef,
				"issued_at":       now,
				"updated_at":      now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			token, err := s.Get(ctx, candidate.ID)
			if err != nil {
				return nil, err
			}
			s.emitToken(ctx, changefeed.OpUpdate, token)
			return token, nil
		}
	}
	return nil, ErrAllocationRace
}

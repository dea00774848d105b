// Package esim manages the pool of single-use eSIM tokens.
package esim

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultBatchLimit   = 500
	DefaultSerialLength = 20
	defaultPickAttempts = 5
)

// Service is the eSIM allocation pool.
type Service struct {
	DB           *gorm.DB
	Feed         changefeed.Publisher
	Clock        clock.Clock
	BatchLimit   int
	SerialLength int
	PickAttempts int
}

func (s *Service) now() time.Time {
	return clock.OrSystem(s.Clock).Now()
}

func (s *Service) batchLimit() int {
	if s.BatchLimit <= 0 {
		return DefaultBatchLimit
	}
	return s.BatchLimit
}

func (s *Service) serialLength() int {
	if s.SerialLength <= 0 {
		return DefaultSerialLength
	}
	return s.SerialLength
}

func (s *Service) pickAttempts() int {
	if s.PickAttempts <= 0 {
		return defaultPickAttempts
	}
	return s.PickAttempts
}

func (s *Service) emitToken(ctx context.Context, op changefeed.Op, t *models.EsimToken) {
	changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Tokens, t.ID.String(), op, t, s.now()))
}

func (s *Service) emitAllocation(ctx context.Context, op changefeed.Op, a *models.EsimAllocation) {
	changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Allocations, a.ID.String(), op, a, s.now()))
}

// audit appends a movement record. Failures are logged; the movement it
// describes has already happened.
func (s *Service) audit(ctx context.Context, action models.MovementAction, tokenID *uuid.UUID, serial string, actor auth.Actor, payload interface{}) {
	b, _ := json.Marshal(payload)
	m := &models.EsimMovement{
		TokenID:    tokenID,
		Serial:     serial,
		Action:     action,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		ActorName:  actor.Label(),
		Payload:    datatypes.JSON(b),
		CreatedAt:  s.now(),
	}
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		log.Error().Err(err).Str("action", string(action)).Str("serial", serial).Msg("eSIM movement not recorded")
	}
}

// Get returns one token.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.EsimToken, error) {
	var t models.EsimToken
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound.WithIDs(id.String())
		}
		return nil, err
	}
	return &t, nil
}

// TokenFilter narrows Tokens. Empty fields match everything.
type TokenFilter struct {
	State    models.TokenState
	IssuedTo string
	OrderRef string
}

// Tokens lists pooled tokens, newest first.
func (s *Service) Tokens(ctx context.Context, f TokenFilter) ([]models.EsimToken, error) {
	q := s.DB.WithContext(ctx).Model(&models.EsimToken{})
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.IssuedTo != "" {
		q = q.Where("issued_to = ?", f.IssuedTo)
	}
	if f.OrderRef != "" {
		q = q.Where("order_ref = ?", f.OrderRef)
	}
	var out []models.EsimToken
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// MyTokens lists tokens currently issued by actor.
func (s *Service) MyTokens(ctx context.Context, actor auth.Actor) ([]models.EsimToken, error) {
	return s.Tokens(ctx, TokenFilter{State: models.TokenIssued, IssuedTo: actor.ID})
}

// Stats is the pool head count.
type Stats struct {
	Available int64 `json:"available"`
	Issued    int64 `json:"issued"`
	Total     int64 `json:"total"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	type row struct {
		State models.TokenState
		Total int64
	}
	var rows []row
	err := s.DB.WithContext(ctx).Model(&models.EsimToken{}).
		Select("state, COUNT(*) AS total").Group("state").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	st := &Stats{}
	for _, r := range rows {
		switch r.State {
		case models.TokenAvailable:
			st.Available = r.Total
		case models.TokenIssued:
			st.Issued = r.Total
		}
	}
	st.Total = st.Available + st.Issued
	return st, nil
}

// PurgeLoad deletes the Available tokens loaded on day (UTC calendar day).
// Issued tokens are kept.
func (s *Service) PurgeLoad(ctx context.Context, day time.Time) (int, error) {
	if day.IsZero() {
		return 0, ErrInvalidPurgeDay
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var doomed []models.EsimToken
	err := s.DB.WithContext(ctx).
		Where("state = ? AND created_at >= ? AND created_at < ?", models.TokenAvailable, start, end).
		Find(&doomed).Error
	if err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, 0, len(doomed))
	for _, t := range doomed {
		ids = append(ids, t.ID)
	}
	res := s.DB.WithContext(ctx).Where("id IN ? AND state = ?", ids, models.TokenAvailable).Delete(&models.EsimToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	for i := range doomed {
		changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Tokens, doomed[i].ID.String(), changefeed.OpDelete, nil, s.now()))
	}
	log.Warn().Str("day", start.Format("2006-01-02")).Int64("deleted", res.RowsAffected).Msg("eSIM load purged")
	return int(res.RowsAffected), nil
}

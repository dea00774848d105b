package ledger

import (
	"context"
	"strings"

	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeleteByIdentifier removes every unit carrying identifier, except units tied
// to a request. Returns the number deleted.
func (s *Service) DeleteByIdentifier(ctx context.Context, identifier string) (int, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, ErrIdentifierNeeded
	}
	var units []models.Unit
	if err := s.DB.WithContext(ctx).Where("identifier = ?", identifier).Find(&units).Error; err != nil {
		return 0, err
	}
	if len(units) == 0 {
		return 0, ErrUnitNotFound.WithIDs(identifier)
	}
	var doomed []models.Unit
	for _, u := range units {
		if u.State != models.UnitRequested {
			doomed = append(doomed, u)
		}
	}
	if len(doomed) == 0 {
		return 0, ErrUnitInRequest.WithIDs(identifier)
	}
	return s.deleteUnits(ctx, doomed)
}

// Purge deletes every unit that is not tied to a pending request.
func (s *Service) Purge(ctx context.Context) (int, error) {
	var units []models.Unit
	if err := s.DB.WithContext(ctx).Where("state <> ?", models.UnitRequested).Find(&units).Error; err != nil {
		return 0, err
	}
	n, err := s.deleteUnits(ctx, units)
	if err == nil {
		log.Warn().Int("deleted", n).Msg("Unit ledger purged")
	}
	return n, err
}

func (s *Service) deleteUnits(ctx context.Context, units []models.Unit) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	// state guard again: a unit may have been requested since it was read
	res := s.DB.WithContext(ctx).Where("id IN ? AND state <> ?", ids, models.UnitRequested).Delete(&models.Unit{})
	if res.Error != nil {
		return 0, res.Error
	}
	removed := units
	if int(res.RowsAffected) != len(units) {
		var left []uuid.UUID
		if err := s.DB.WithContext(ctx).Model(&models.Unit{}).Where("id IN ?", ids).Pluck("id", &left).Error; err != nil {
			return int(res.RowsAffected), err
		}
		still := make(map[uuid.UUID]bool, len(left))
		for _, id := range left {
			still[id] = true
		}
		removed = removed[:0:0]
		for _, u := range units {
			if !still[u.ID] {
				removed = append(removed, u)
			}
		}
	}
	for i := range removed {
		changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Units, removed[i].ID.String(), changefeed.OpDelete, nil, s.Now()))
	}
	return int(res.RowsAffected), nil
}

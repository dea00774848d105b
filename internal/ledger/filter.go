package ledger

import (
	"context"
	"strings"

	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
)

// Filter is the agent-facing unit view query. Empty fields match everything.
type Filter struct {
	Identifier string // substring, case-insensitive
	Brand      string
	Model      string
	Agency     string
	State      models.UnitState
	Category   Category
	HeldBy     string
	Event      *uuid.UUID
}

// Match reports whether u passes f.
func (f Filter) Match(u *models.Unit) bool {
	if f.Identifier != "" && !containsFold(u.Identifier, f.Identifier) {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(strings.TrimSpace(u.Brand), strings.TrimSpace(f.Brand)) {
		return false
	}
	if f.Model != "" && !containsFold(u.Model, f.Model) {
		return false
	}
	if f.Agency != "" && !strings.EqualFold(strings.TrimSpace(u.Agency), strings.TrimSpace(f.Agency)) {
		return false
	}
	if f.State != "" && u.State != f.State {
		return false
	}
	if f.Category != "" && Categorize(u) != f.Category {
		return false
	}
	if f.HeldBy != "" && u.HolderID() != f.HeldBy {
		return false
	}
	if f.Event != nil && !u.InEvent(*f.Event) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}

// List returns units matching f, oldest first. Indexed columns are pushed down
// to the query; the rest is matched in memory.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Unit, error) {
	q := s.DB.WithContext(ctx).Model(&models.Unit{})
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.HeldBy != "" {
		q = q.Where("held_by = ?", f.HeldBy)
	}
	if f.Event != nil {
		q = q.Where("assigned_event = ?", *f.Event)
	}
	var units []models.Unit
	if err := q.Order("created_at ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	out := units[:0]
	for i := range units {
		if f.Match(&units[i]) {
			out = append(out, units[i])
		}
	}
	return out, nil
}

// View is a unit with its derived category, as served to clients.
type View struct {
	models.Unit
	Category Category `json:"category"`
}

// Views decorates units with their category.
func Views(units []models.Unit) []View {
	out := make([]View, 0, len(units))
	for i := range units {
		out = append(out, View{Unit: units[i], Category: Categorize(&units[i])})
	}
	return out
}

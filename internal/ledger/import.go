package ledger

import (
	"context"
	"strings"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/validation"

	"github.com/rs/zerolog/log"
)

// ImportRow is one parsed inventory upload row. IMEI wins over Serial when both are set.
type ImportRow struct {
	Agency string `json:"agency"`
	Brand  string `json:"brand"`
	Model  string `json:"model"`
	IMEI   string `json:"imei"`
	Serial string `json:"serial"`
}

// Rejection explains why a row was not imported. Row is 1-based.
type Rejection struct {
	Row        int    `json:"row"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason"`
}

// ImportResult is the structured outcome of an inventory upload.
type ImportResult struct {
	Accepted     int         `json:"accepted"`
	Duplicates   int         `json:"duplicates"`
	DuplicateIDs []string    `json:"duplicate_identifiers"`
	Rejected     []Rejection `json:"rejected"`
}

const importChunk = 500

// Import creates Available units from rows. Identifiers already live on a
// non-sold unit, or repeated earlier in the batch, count as duplicates.
func (s *Service) Import(ctx context.Context, actor auth.Actor, rows []ImportRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, ErrNothingToImport
	}
	res := &ImportResult{DuplicateIDs: []string{}, Rejected: []Rejection{}}

	type candidate struct {
		row  int
		unit models.Unit
	}
	var candidates []candidate
	seen := make(map[string]bool)
	for i, r := range rows {
		agency, brand, model := strings.TrimSpace(r.Agency), strings.TrimSpace(r.Brand), strings.TrimSpace(r.Model)
		ident, kind := strings.TrimSpace(r.IMEI), models.IdentifierIMEI
		if ident == "" {
			ident, kind = strings.TrimSpace(r.Serial), models.IdentifierSerial
		}
		switch {
		case ident == "":
			res.Rejected = append(res.Rejected, Rejection{Row: i + 1, Reason: "missing identifier"})
			continue
		case agency == "":
			res.Rejected = append(res.Rejected, Rejection{Row: i + 1, Identifier: ident, Reason: "missing agency"})
			continue
		case brand == "":
			res.Rejected = append(res.Rejected, Rejection{Row: i + 1, Identifier: ident, Reason: "missing brand"})
			continue
		case model == "":
			res.Rejected = append(res.Rejected, Rejection{Row: i + 1, Identifier: ident, Reason: "missing model"})
			continue
		case !validation.IsValidIdentifier(ident):
			res.Rejected = append(res.Rejected, Rejection{Row: i + 1, Identifier: ident, Reason: "malformed identifier"})
			continue
		}
		if seen[ident] {
			res.Duplicates++
			res.DuplicateIDs = append(res.DuplicateIDs, ident)
			continue
		}
		seen[ident] = true
		candidates = append(candidates, candidate{row: i + 1, unit: models.Unit{
			Identifier:     ident,
			IdentifierKind: kind,
			Brand:          brand,
			Model:          model,
			Agency:         agency,
			State:          models.UnitAvailable,
		}})
	}

	live, err := s.liveIdentifiers(ctx, seen)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var fresh []models.Unit
	for _, c := range candidates {
		if live[c.unit.Identifier] {
			res.Duplicates++
			res.DuplicateIDs = append(res.DuplicateIDs, c.unit.Identifier)
			continue
		}
		c.unit.CreatedAt = now
		c.unit.UpdatedAt = now
		fresh = append(fresh, c.unit)
	}
	if len(fresh) > 0 {
		if err := s.DB.WithContext(ctx).CreateInBatches(&fresh, 100).Error; err != nil {
			return nil, err
		}
		for i := range fresh {
			s.emit(ctx, changefeed.OpCreate, &fresh[i])
		}
	}
	res.Accepted = len(fresh)
	log.Info().Str("actor", actor.ID).Int("accepted", res.Accepted).Int("duplicates", res.Duplicates).
		Int("rejected", len(res.Rejected)).Msg("Inventory import")
	return res, nil
}

// liveIdentifiers returns which of idents already exist on a non-sold unit.
func (s *Service) liveIdentifiers(ctx context.Context, idents map[string]bool) (map[string]bool, error) {
	all := make([]string, 0, len(idents))
	for id := range idents {
		all = append(all, id)
	}
	live := make(map[string]bool)
	for start := 0; start < len(all); start += importChunk {
		end := start + importChunk
		if end > len(all) {
			end = len(all)
		}
		var found []string
		err := s.DB.WithContext(ctx).Model(&models.Unit{}).
			Where("identifier IN ? AND state <> ?", all[start:end], models.UnitSold).
			Pluck("identifier", &found).Error
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			live[f] = true
		}
	}
	return live, nil
}

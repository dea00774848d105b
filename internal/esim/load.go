package esim

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/database"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/apperr"

	"github.com/rs/zerolog/log"
)

// RejectedSerial is a serial that matched but could not be stored.
type RejectedSerial struct {
	Serial string `json:"serial"`
	Reason string `json:"reason"`
}

// LoadResult is the feedback for one pasted batch.
type LoadResult struct {
	Extracted       int              `json:"extracted"`
	Inserted        int              `json:"inserted"`
	Duplicates      int              `json:"duplicates"`
	BatchDuplicates int              `json:"batch_duplicates"`
	RejectedRows    int              `json:"rejected_rows"`
	Rejected        []RejectedSerial `json:"rejected"`
	DiscardedChars  int              `json:"discarded_chars"`
	TotalChars      int              `json:"total_chars"`
	Serials         []string         `json:"serials"`
}

// Extract pulls whole digit runs of exactly length digits out of raw. It
// returns the matches in order (with repeats) and the count of non-whitespace
// characters that were not part of any match.
func Extract(raw string, length int) ([]string, int, int) {
	re := regexp.MustCompile(fmt.Sprintf(`\b\d{%d}\b`, length))
	matches := re.FindAllString(raw, -1)
	total := 0
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			total++
		}
	}
	matched := len(strings.Join(matches, ""))
	return matches, total - matched, total
}

// LoadBatch adds the serials found in raw to the pool. Serials already pooled
// count as duplicates; a store-level unique violation is a duplicate too.
func (s *Service) LoadBatch(ctx context.Context, actor auth.Actor, raw string) (*LoadResult, error) {
	matches, discarded, total := Extract(raw, s.serialLength())
	if len(matches) == 0 {
		return nil, ErrNoSerials
	}
	res := &LoadResult{
		Extracted:      len(matches),
		DiscardedChars: discarded,
		TotalChars:     total,
		Rejected:       []RejectedSerial{},
		Serials:        []string{},
	}

	seen := make(map[string]bool, len(matches))
	unique := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			res.BatchDuplicates++
			continue
		}
		seen[m] = true
		unique = append(unique, m)
	}
	if len(unique) > s.batchLimit() {
		return nil, apperr.Validation("Batch exceeds the serial limit (%d serials, limit %d)", len(unique), s.batchLimit())
	}

	var existing []string
	if err := s.DB.WithContext(ctx).Model(&models.EsimToken{}).Where("serial IN ?", unique).Pluck("serial", &existing).Error; err != nil {
		return nil, err
	}
	pooled := make(map[string]bool, len(existing))
	for _, e := range existing {
		pooled[e] = true
	}

	now := s.now()
	for _, serial := range unique {
		if pooled[serial] {
			res.Duplicates++
			continue
		}
		t := &models.EsimToken{Serial: serial, State: models.TokenAvailable, CreatedAt: now, UpdatedAt: now}
		if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
			if database.IsUniqueViolation(err) {
				res.Duplicates++
				continue
			}
			res.Rejected = append(res.Rejected, RejectedSerial{Serial: serial, Reason: err.Error()})
			continue
		}
		res.Inserted++
		res.Serials = append(res.Serials, serial)
		s.emitToken(ctx, changefeed.OpCreate, t)
	}
	res.RejectedRows = len(res.Rejected)

	s.audit(ctx, models.MovementLoad, nil, "", actor, map[string]interface{}{
		"extracted":        res.Extracted,
		"inserted":         res.Inserted,
		"duplicates":       res.Duplicates,
		"batch_duplicates": res.BatchDuplicates,
		"rejected":         res.RejectedRows,
		"discarded_chars":  res.DiscardedChars,
	})
	log.Info().Str("actor", actor.ID).Int("inserted", res.Inserted).Int("duplicates", res.Duplicates).
		Int("discarded_chars", res.DiscardedChars).Msg("eSIM batch loaded")
	return res, nil
}

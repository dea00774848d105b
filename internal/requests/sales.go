package requests

import (
	"context"
	"encoding/json"
	"time"

	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/database"
	"stockdesk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// HasSale reports whether the sales ledger already has a record for unitID.
func (s *Service) HasSale(ctx context.Context, unitID uuid.UUID) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.SaleRecord{}).Where("unit_id = ?", unitID).Count(&n).Error
	return n > 0, err
}

// RecordSale appends the sales ledger entry for a unit sold under req, unless
// one exists. before is the unit as it was prior to the sale (for the snapshot).
func (s *Service) RecordSale(ctx context.Context, req *models.SaleRequest, before, sold *models.Unit, source models.SaleSource) (bool, error) {
	exists, err := s.HasSale(ctx, sold.ID)
	if err != nil || exists {
		return false, err
	}
	snap, _ := json.Marshal(before)
	rec := &models.SaleRecord{
		UnitID:        sold.ID,
		Identifier:    sold.Identifier,
		Brand:         sold.Brand,
		Model:         sold.Model,
		Agency:        sold.Agency,
		RequestID:     req.ID,
		AgentID:       req.RequestedBy,
		AgentName:     req.RequestedByName,
		AgentEmail:    req.RequestedByEmail,
		CustomerName:  req.CustomerName,
		CustomerTaxID: req.CustomerTaxID,
		OrderRef:      req.OrderRef,
		Source:        source,
		Snapshot:      datatypes.JSON(snap),
		SoldAt:        s.now(),
		CreatedAt:     s.now(),
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	log.Ctx(ctx).Info().Str("request_id", req.ID.String()).Str("unit_id", sold.ID.String()).Str("source", string(source)).Msg("Sale recorded")
	changefeed.Emit(ctx, s.Feed, changefeed.Of(changefeed.Sales, rec.ID.String(), changefeed.OpCreate, rec, s.now()))
	return true, nil
}

// SalesFilter narrows SalesLedger. Zero fields match everything.
type SalesFilter struct {
	AgentID  string
	OrderRef string
	From     *time.Time
	To       *time.Time
}

// SalesLedger returns sales ledger entries, newest first.
func (s *Service) SalesLedger(ctx context.Context, f SalesFilter) ([]models.SaleRecord, error) {
	q := s.DB.WithContext(ctx).Model(&models.SaleRecord{})
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.OrderRef != "" {
		q = q.Where("order_ref = ?", f.OrderRef)
	}
	if f.From != nil {
		q = q.Where("sold_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("sold_at < ?", *f.To)
	}
	var out []models.SaleRecord
	err := q.Order("sold_at DESC").Find(&out).Error
	return out, err
}

// Detail is an approved request with everything a document renderer needs.
type Detail struct {
	Request models.SaleRequest  `json:"request"`
	Units   []models.Unit       `json:"units"`
	Sales   []models.SaleRecord `json:"sales"`
}

// ApprovedDetail returns an Approved request with its units and ledger records.
func (s *Service) ApprovedDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State != models.RequestApproved {
		return nil, ErrNotApproved.WithIDs(id.String())
	}
	unitIDs, _ := parseIDs(req.UnitIDs)
	byID, err := s.Ledger.GetMany(ctx, unitIDs)
	if err != nil {
		return nil, err
	}
	d := &Detail{Request: *req, Units: []models.Unit{}}
	for _, uid := range unitIDs {
		if u, ok := byID[uid]; ok {
			d.Units = append(d.Units, *u)
		}
	}
	if err := s.DB.WithContext(ctx).Where("request_id = ?", id).Order("sold_at ASC").Find(&d.Sales).Error; err != nil {
		return nil, err
	}
	return d, nil
}

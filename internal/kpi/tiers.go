package kpi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-sales/internal/common"
	"github.com/noah-isme/toko-sales/internal/db"
)

// TierInput carries the writable fields of a tier.
type TierInput struct {
	Name               string
	Description        string
	MinAchievedPercent int
	BonusPercent       int
	DisplayOrder       int
}

func validateTier(in TierInput) error {
	switch {
	case in.Name == "":
		return common.Errorf(common.KindValidation, "tier name is required")
	case in.DisplayOrder <= 0:
		return common.Errorf(common.KindValidation, "displayOrder must be greater than zero")
	case in.MinAchievedPercent < 0 || in.MinAchievedPercent > 1000:
		return common.Errorf(common.KindValidation, "minAchievedPercent must be between 0 and 1000")
	case in.BonusPercent < 0 || in.BonusPercent > 100:
		return common.Errorf(common.KindValidation, "bonusPercent must be between 0 and 100")
	}
	return nil
}

func tierParams(id int64, in TierInput) db.KpiTierParams {
	return db.KpiTierParams{
		ID:                 id,
		Name:               in.Name,
		Description:        pgtype.Text{String: in.Description, Valid: in.Description != ""},
		MinAchievedPercent: int32(in.MinAchievedPercent),
		BonusPercent:       int32(in.BonusPercent),
		DisplayOrder:       int32(in.DisplayOrder),
	}
}

func normalizeTier(in TierInput) TierInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// ListTiers returns every tier ordered by display order.
func (s *Service) ListTiers(ctx context.Context) ([]Tier, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.loadTiers(ctx, s.Store)
}

// CreateTier stores a new tier.
func (s *Service) CreateTier(ctx context.Context, in TierInput) (Tier, error) {
	if err := s.ready(); err != nil {
		return Tier{}, err
	}
	in = normalizeTier(in)
	if err := validateTier(in); err != nil {
		return Tier{}, err
	}
	row, err := s.Store.CreateKpiTier(ctx, tierParams(0, in))
	if err != nil {
		return Tier{}, fmt.Errorf("create tier: %w", err)
	}
	s.dropAllDashboards(ctx)
	s.Logger.Info().Int64("tier_id", row.ID).Str("name", row.Name).Msg("kpi tier created")
	return tierFromRow(row), nil
}

// UpdateTier replaces the tier's fields.
func (s *Service) UpdateTier(ctx context.Context, id int64, in TierInput) (Tier, error) {
	if err := s.ready(); err != nil {
		return Tier{}, err
	}
	in = normalizeTier(in)
	if err := validateTier(in); err != nil {
		return Tier{}, err
	}
	row, err := s.Store.UpdateKpiTier(ctx, tierParams(id, in))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tier{}, common.Wrap(common.KindNotFound, ErrTierNotFound, fmt.Sprintf("tier %d not found", id))
		}
		return Tier{}, fmt.Errorf("update tier: %w", err)
	}
	s.dropAllDashboards(ctx)
	s.Logger.Info().Int64("tier_id", id).Msg("kpi tier updated")
	return tierFromRow(row), nil
}

// DeleteTier removes a tier that no target or commission references.
func (s *Service) DeleteTier(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	n, err := s.Store.DeleteKpiTier(ctx, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return common.Wrap(common.KindValidation, ErrTierInUse, fmt.Sprintf("tier %d is still referenced", id))
		}
		return fmt.Errorf("delete tier: %w", err)
	}
	if n == 0 {
		return common.Wrap(common.KindNotFound, ErrTierNotFound, fmt.Sprintf("tier %d not found", id))
	}
	s.dropAllDashboards(ctx)
	s.Logger.Info().Int64("tier_id", id).Msg("kpi tier deleted")
	return nil
}

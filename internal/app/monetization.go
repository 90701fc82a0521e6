package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MonetizationConfigInput carries admin-supplied fee schedule fields. Nil
// fields are left unchanged on update.
type MonetizationConfigInput struct {
	Name           *string
	FeeBase        *decimal.Decimal
	PlatformCutPct *decimal.Decimal
	PosterSharePct *decimal.Decimal
	Currency       *string
	IsActive       *bool
}

func (in MonetizationConfigInput) apply(cfg *domain.MonetizationConfig) error {
	if in.Name != nil {
		cfg.Name = strings.TrimSpace(*in.Name)
	}
	if in.FeeBase != nil {
		cfg.FeeBase = *in.FeeBase
	}
	if in.PlatformCutPct != nil {
		cfg.PlatformCutPct = *in.PlatformCutPct
	}
	if in.PosterSharePct != nil {
		cfg.PosterSharePct = *in.PosterSharePct
	}
	if in.Currency != nil {
		cfg.Currency = *in.Currency
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	currency, err := domain.NormalizeCurrency(cfg.Currency)
	if err != nil {
		return err
	}
	cfg.Currency = currency
	return cfg.Validate()
}

// CreateMonetizationConfig stores a new fee schedule. It is active unless the
// input says otherwise.
func (s *Service) CreateMonetizationConfig(ctx context.Context, in MonetizationConfigInput) (*domain.MonetizationConfig, error) {
	now := s.now()
	cfg := &domain.MonetizationConfig{
		ID:        uuid.New(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := in.apply(cfg); err != nil {
		return nil, err
	}
	if err := s.repo.CreateMonetizationConfig(ctx, cfg); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"config_id": cfg.ID, "config_name": cfg.Name}).Info("monetization config created")
	return cfg, nil
}

// ListMonetizationConfigs lists fee schedules.
func (s *Service) ListMonetizationConfigs(ctx context.Context, activeOnly bool) ([]domain.MonetizationConfig, error) {
	return s.repo.ListMonetizationConfigs(ctx, activeOnly)
}

// GetMonetizationConfig returns a fee schedule by id.
func (s *Service) GetMonetizationConfig(ctx context.Context, configID uuid.UUID) (*domain.MonetizationConfig, error) {
	return s.repo.GetMonetizationConfig(ctx, configID)
}

// UpdateMonetizationConfig changes a fee schedule. Connections already created
// keep the split they were priced with.
func (s *Service) UpdateMonetizationConfig(ctx context.Context, configID uuid.UUID, in MonetizationConfigInput) (*domain.MonetizationConfig, error) {
	cfg, err := s.repo.GetMonetizationConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if err := in.apply(cfg); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = s.now()
	if err := s.repo.UpdateMonetizationConfig(ctx, cfg); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"config_id": cfg.ID, "config_name": cfg.Name, "is_active": cfg.IsActive}).Info("monetization config updated")
	return cfg, nil
}

// DeactivateMonetizationConfig takes a fee schedule out of use.
func (s *Service) DeactivateMonetizationConfig(ctx context.Context, configID uuid.UUID) (*domain.MonetizationConfig, error) {
	inactive := false
	return s.UpdateMonetizationConfig(ctx, configID, MonetizationConfigInput{IsActive: &inactive})
}

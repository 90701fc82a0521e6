package app

import (
	"context"
	"fmt"

	"github.com/kontent/connection-service/internal/domain"
	"github.com/shopspring/decimal"
)

// ConfigSource looks up the active fee schedule.
type ConfigSource interface {
	FindActiveMonetizationConfig(ctx context.Context, name string) (*domain.MonetizationConfig, error)
}

// FeePolicy resolves the fee a new connection costs and how it splits.
type FeePolicy struct{}

// Resolve reads the active config named name and splits its fee.
func (FeePolicy) Resolve(ctx context.Context, src ConfigSource, name string) (domain.FeeSplit, error) {
	cfg, err := src.FindActiveMonetizationConfig(ctx, name)
	if err != nil {
		return domain.FeeSplit{}, fmt.Errorf("resolve fee config %q: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return domain.FeeSplit{}, fmt.Errorf("fee config %q is malformed: %w", name, err)
	}
	return SplitFee(*cfg), nil
}

// SplitFee divides cfg.FeeBase between platform and recipient. Both shares are
// rounded half-to-even to the currency's minor unit and any rounding remainder
// goes to the platform, so the shares always sum to the fee exactly.
func SplitFee(cfg domain.MonetizationConfig) domain.FeeSplit {
	currency, err := domain.NormalizeCurrency(cfg.Currency)
	if err != nil {
		currency = domain.DefaultCurrency
	}
	places := domain.MinorUnits(currency)

	fee := cfg.FeeBase.RoundBank(places)
	posterShare := fee.Mul(cfg.PosterSharePct).RoundBank(places)
	platformCut := fee.Mul(cfg.PlatformCutPct).RoundBank(places)
	if remainder := fee.Sub(platformCut).Sub(posterShare); !remainder.IsZero() {
		platformCut = platformCut.Add(remainder)
	}
	if platformCut.IsNegative() {
		posterShare = posterShare.Add(platformCut)
		platformCut = decimal.Zero
	}

	return domain.FeeSplit{
		FeeAmount:   fee,
		PlatformCut: platformCut,
		PosterShare: posterShare,
		Currency:    currency,
		ConfigName:  cfg.Name,
	}
}

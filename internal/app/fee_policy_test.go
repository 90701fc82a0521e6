package app

import (
	"context"
	"errors"
	"testing"

	"github.com/kontent/connection-service/internal/domain"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name         string
		cfg          domain.MonetizationConfig
		wantFee      string
		wantPlatform string
		wantPoster   string
	}{
		{
			name:         "standard dm fee",
			cfg:          domain.MonetizationConfig{Name: "DM_FEE_STANDARD", FeeBase: dec("10.00"), PlatformCutPct: dec("0.20"), PosterSharePct: dec("0.80")},
			wantFee:      "10.00",
			wantPlatform: "2.00",
			wantPoster:   "8.00",
		},
		{
			name:         "half cent goes to platform",
			cfg:          domain.MonetizationConfig{FeeBase: dec("0.05"), PlatformCutPct: dec("0.5"), PosterSharePct: dec("0.5")},
			wantFee:      "0.05",
			wantPlatform: "0.03",
			wantPoster:   "0.02",
		},
		{
			name:         "thirds",
			cfg:          domain.MonetizationConfig{FeeBase: dec("1.00"), PlatformCutPct: dec("0.3333"), PosterSharePct: dec("0.6667")},
			wantFee:      "1.00",
			wantPlatform: "0.33",
			wantPoster:   "0.67",
		},
		{
			name:         "single cent",
			cfg:          domain.MonetizationConfig{FeeBase: dec("0.01"), PlatformCutPct: dec("0.5"), PosterSharePct: dec("0.5")},
			wantFee:      "0.01",
			wantPlatform: "0.01",
			wantPoster:   "0.00",
		},
		{
			name:         "zero decimal currency",
			cfg:          domain.MonetizationConfig{FeeBase: dec("1000"), PlatformCutPct: dec("0.15"), PosterSharePct: dec("0.85"), Currency: "jpy"},
			wantFee:      "1000",
			wantPlatform: "150",
			wantPoster:   "850",
		},
		{
			name:         "all to poster",
			cfg:          domain.MonetizationConfig{FeeBase: dec("4.99"), PlatformCutPct: dec("0"), PosterSharePct: dec("1")},
			wantFee:      "4.99",
			wantPlatform: "0",
			wantPoster:   "4.99",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			split := SplitFee(tc.cfg)
			if !split.FeeAmount.Equal(dec(tc.wantFee)) {
				t.Fatalf("fee = %s, want %s", split.FeeAmount, tc.wantFee)
			}
			if !split.PlatformCut.Equal(dec(tc.wantPlatform)) {
				t.Fatalf("platform cut = %s, want %s", split.PlatformCut, tc.wantPlatform)
			}
			if !split.PosterShare.Equal(dec(tc.wantPoster)) {
				t.Fatalf("poster share = %s, want %s", split.PosterShare, tc.wantPoster)
			}
			if !split.PlatformCut.Add(split.PosterShare).Equal(split.FeeAmount) {
				t.Fatalf("shares %s + %s do not sum to fee %s", split.PlatformCut, split.PosterShare, split.FeeAmount)
			}
		})
	}
}

func TestSplitFee_DefaultsCurrency(t *testing.T) {
	split := SplitFee(domain.MonetizationConfig{Name: "X", FeeBase: dec("3"), PlatformCutPct: dec("0.5"), PosterSharePct: dec("0.5")})
	if split.Currency != "USD" || split.ConfigName != "X" {
		t.Fatalf("unexpected split metadata %+v", split)
	}
}

type configSourceStub struct {
	cfg *domain.MonetizationConfig
	err error
}

func (s configSourceStub) FindActiveMonetizationConfig(ctx context.Context, name string) (*domain.MonetizationConfig, error) {
	return s.cfg, s.err
}

func TestFeePolicyResolve(t *testing.T) {
	_, err := FeePolicy{}.Resolve(context.Background(), configSourceStub{err: domain.ErrConfigNotFound}, "DM_FEE_STANDARD")
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}

	malformed := &domain.MonetizationConfig{Name: "BAD", FeeBase: dec("10"), PlatformCutPct: dec("0.5"), PosterSharePct: dec("0.6")}
	if _, err := (FeePolicy{}).Resolve(context.Background(), configSourceStub{cfg: malformed}, "BAD"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for malformed config, got %v", err)
	}

	good := &domain.MonetizationConfig{Name: "GOOD", FeeBase: dec("10"), PlatformCutPct: dec("0.2"), PosterSharePct: dec("0.8")}
	split, err := FeePolicy{}.Resolve(context.Background(), configSourceStub{cfg: good}, "GOOD")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !split.PosterShare.Equal(dec("8")) {
		t.Fatalf("unexpected poster share %s", split.PosterShare)
	}
}

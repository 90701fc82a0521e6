package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a config or payment omits one.
const DefaultCurrency = "USD"

// PercentagePlaces is the scale of the stored split percentages, NUMERIC(5,4).
const PercentagePlaces = 4

// MonetizationConfig is an admin-managed fee schedule looked up by name.
type MonetizationConfig struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"config_name"`
	FeeBase        decimal.Decimal `json:"fee_base"`
	PlatformCutPct decimal.Decimal `json:"platform_cut_percentage"`
	PosterSharePct decimal.Decimal `json:"poster_share_percentage"`
	Currency       string          `json:"currency"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate checks the invariants a fee schedule must hold before it can be stored.
func (c *MonetizationConfig) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" || len(name) > 100 {
		return &ValidationError{Field: "config_name", Reason: "must be between 1 and 100 characters"}
	}
	currency, err := NormalizeCurrency(c.Currency)
	if err != nil {
		return err
	}
	if !c.FeeBase.IsPositive() {
		return &ValidationError{Field: "fee_base", Reason: "must be greater than zero"}
	}
	if units := MinorUnits(currency); !c.FeeBase.Equal(c.FeeBase.Truncate(units)) {
		return &ValidationError{Field: "fee_base", Reason: fmt.Sprintf("must have at most %d decimal places for %s", units, currency)}
	}
	one := decimal.NewFromInt(1)
	for field, pct := range map[string]decimal.Decimal{
		"platform_cut_percentage": c.PlatformCutPct,
		"poster_share_percentage": c.PosterSharePct,
	} {
		if pct.IsNegative() || pct.GreaterThan(one) {
			return &ValidationError{Field: field, Reason: "must be between 0 and 1"}
		}
		if !pct.Equal(pct.Truncate(PercentagePlaces)) {
			return &ValidationError{Field: field, Reason: "must have at most 4 decimal places"}
		}
	}
	if !c.PlatformCutPct.Add(c.PosterSharePct).Equal(one) {
		return &ValidationError{Field: "poster_share_percentage", Reason: "percentages must sum to 1"}
	}
	return nil
}

// FeeSplit is the amount a requester pays and how it divides between the platform
// and the recipient.
type FeeSplit struct {
	FeeAmount   decimal.Decimal
	PlatformCut decimal.Decimal
	PosterShare decimal.Decimal
	Currency    string
	ConfigName  string
}

// NormalizeCurrency upper-cases a three-letter ISO code, defaulting empty input.
func NormalizeCurrency(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", &ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", &ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
		}
	}
	return code, nil
}

var zeroDecimalCurrencies = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true, "UGX": true, "XAF": true, "XOF": true,
}

// MinorUnits returns the number of decimal places amounts in currency carry.
func MinorUnits(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

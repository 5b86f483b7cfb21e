// Package pricing maps a buyer's loyalty tier to discount and delivery fee
// and computes order totals. Amounts are integer minor currency units.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

const (
	SilverThreshold int64 = 1_000_000
	GoldThreshold   int64 = 2_000_000

	StandardDeliveryFee int64 = 3000
)

var (
	rateGold   = decimal.RequireFromString("0.10")
	rateSilver = decimal.RequireFromString("0.05")
	one        = decimal.NewFromInt(1)
)

func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold:
		return true
	}
	return false
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// DiscountRate panics on an unknown tier.
func DiscountRate(t Tier) decimal.Decimal {
	switch t {
	case TierGold:
		return rateGold
	case TierSilver:
		return rateSilver
	case TierBronze:
		return decimal.Zero
	}
	panic(fmt.Sprintf("pricing: unknown tier %q", t))
}

// DeliveryFee panics on an unknown tier.
func DeliveryFee(t Tier) int64 {
	switch t {
	case TierGold:
		return 0
	case TierSilver, TierBronze:
		return StandardDeliveryFee
	}
	panic(fmt.Sprintf("pricing: unknown tier %q", t))
}

// TotalPrice = round(subtotal × (1 − rate)) + fee, rounded half-up.
func TotalPrice(subtotal int64, t Tier) int64 {
	return discounted(subtotal, t) + DeliveryFee(t)
}

func discounted(subtotal int64, t Tier) int64 {
	return decimal.NewFromInt(subtotal).
		Mul(one.Sub(DiscountRate(t))).
		Round(0).
		IntPart()
}

// TierForSpend uses inclusive lower bounds and no hysteresis.
func TierForSpend(totalSpent int64) Tier {
	switch {
	case totalSpent >= GoldThreshold:
		return TierGold
	case totalSpent >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// Quote is the full price breakdown for one cart subtotal at one tier.
type Quote struct {
	Tier             Tier            `json:"tier"`
	SubtotalCents    int64           `json:"subtotal_cents"`
	DiscountRate     decimal.Decimal `json:"discount_rate"`
	DiscountCents    int64           `json:"discount_cents"`
	DeliveryFeeCents int64           `json:"delivery_fee_cents"`
	TotalCents       int64           `json:"total_cents"`
}

func NewQuote(subtotal int64, t Tier) Quote {
	d := discounted(subtotal, t)
	fee := DeliveryFee(t)
	return Quote{
		Tier:             t,
		SubtotalCents:    subtotal,
		DiscountRate:     DiscountRate(t),
		DiscountCents:    subtotal - d,
		DeliveryFeeCents: fee,
		TotalCents:       d + fee,
	}
}

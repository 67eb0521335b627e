package pricing

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in whole currency units. Values are kept
// within the signed 32-bit range; the 64-bit carrier type leaves room for
// intermediate products.
type Money = int64

// MaxAmount is the largest representable money value.
const MaxAmount Money = math.MaxInt32

// ErrOverflow is returned when a line or subtotal exceeds MaxAmount.
var ErrOverflow = errors.New("pricing: amount exceeds representable range")

var hundred = decimal.NewFromInt(100)

// ClampPercent bounds pct to [0, 100].
func ClampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func clampAmount(v Money) Money {
	if v < 0 {
		return 0
	}
	if v > MaxAmount {
		return MaxAmount
	}
	return v
}

// SafeAdd adds two amounts, saturating at MaxAmount.
func SafeAdd(a, b Money) Money {
	return clampAmount(a + b)
}

// PercentOf returns amount*pct/100 truncated, with pct clamped to [0, 100].
// Non-positive inputs yield 0.
func PercentOf(amount Money, pct int) Money {
	pct = ClampPercent(pct)
	if amount <= 0 || pct <= 0 {
		return 0
	}
	return clampAmount(amount * Money(pct) / 100)
}

// ApplyDiscount returns price reduced by pct percent, rounded half away from
// zero and never below zero.
func ApplyDiscount(price Money, pct int) Money {
	pct = ClampPercent(pct)
	if price <= 0 {
		return 0
	}
	v := decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(int64(100 - pct))).
		Div(hundred).
		Round(0).
		IntPart()
	return clampAmount(v)
}

// LineTotal multiplies unit by qty and fails instead of truncating.
func LineTotal(unit Money, qty int) (Money, error) {
	if unit < 0 || qty < 0 {
		return 0, ErrOverflow
	}
	if qty != 0 && unit > MaxAmount/Money(qty) {
		return 0, ErrOverflow
	}
	return unit * Money(qty), nil
}

// Sum adds the values and fails when the running total leaves the representable range.
func Sum(values ...Money) (Money, error) {
	var total Money
	for _, v := range values {
		total += v
		if total > MaxAmount || v < 0 {
			return 0, ErrOverflow
		}
	}
	return total, nil
}

// RoundRatioPercent returns round(part*100/whole) half away from zero, or 0 when whole <= 0.
func RoundRatioPercent(part, whole Money) int {
	if whole <= 0 || part <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(whole)).Round(0).IntPart())
}

package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity is returned when a requested line has quantity <= 0.
	ErrInvalidQuantity = errors.New("pricing: quantity must be greater than zero")
	// ErrUnknownProduct is returned when a requested product has no catalog entry.
	ErrUnknownProduct = errors.New("pricing: unknown product")
)

// Product is the catalog view the engine prices from.
type Product struct {
	ID         int64
	SalePrice  Money
	CategoryID int64
}

// LineRequest is one requested (product, quantity) pair.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Line is a priced order line. UnitPrice is the discounted price frozen at build time.
type Line struct {
	ProductID  int64
	Quantity   int
	UnitPrice  Money
	TotalPrice Money
}

// PriceItems prices every request against the catalog and the resolved
// per-product discount percentages.
func PriceItems(requests []LineRequest, products map[int64]Product, discounts map[int64]int) ([]Line, Money, error) {
	lines := make([]Line, 0, len(requests))
	var subtotal Money
	for _, req := range requests {
		if req.Quantity <= 0 {
			return nil, 0, fmt.Errorf("product %d: %w", req.ProductID, ErrInvalidQuantity)
		}
		product, ok := products[req.ProductID]
		if !ok {
			return nil, 0, fmt.Errorf("product %d: %w", req.ProductID, ErrUnknownProduct)
		}
		unit := ApplyDiscount(product.SalePrice, discounts[req.ProductID])
		total, err := LineTotal(unit, req.Quantity)
		if err != nil {
			return nil, 0, fmt.Errorf("line total for product %d: %w", req.ProductID, err)
		}
		subtotal, err = Sum(subtotal, total)
		if err != nil {
			return nil, 0, fmt.Errorf("order subtotal: %w", err)
		}
		lines = append(lines, Line{
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			UnitPrice:  unit,
			TotalPrice: total,
		})
	}
	return lines, subtotal, nil
}

// OrderDiscount returns the order-level discount amount, never exceeding subtotal.
func OrderDiscount(subtotal Money, pct int) Money {
	amount := PercentOf(subtotal, pct)
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Breakdown is the client-facing discount view of an order.
type Breakdown struct {
	Subtotal        Money `json:"subtotal"`
	DiscountAmount  Money `json:"discountAmount"`
	DiscountPercent int   `json:"discountPercent"`
	Total           Money `json:"total"`
}

// DeriveBreakdown recomputes the discount from the stored item totals and the
// stored order total. Nothing else is trusted.
func DeriveBreakdown(itemTotals []Money, total Money) Breakdown {
	var subtotal Money
	for _, v := range itemTotals {
		subtotal = SafeAdd(subtotal, v)
	}
	return BreakdownFromSubtotal(subtotal, total)
}

// BreakdownFromSubtotal is DeriveBreakdown for an already aggregated subtotal.
func BreakdownFromSubtotal(subtotal, total Money) Breakdown {
	if subtotal < 0 {
		subtotal = 0
	}
	discount := subtotal - total
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return Breakdown{
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		DiscountPercent: RoundRatioPercent(discount, subtotal),
		Total:           total,
	}
}

// Package pricing computes reservation totals with fixed-point decimal
// arithmetic. Every line item is rounded to cents with round-half-even; the
// total is the raw sum of the rounded items and is never re-rounded.
package pricing

import (
	"fmt"
	"strings"
	"time"

	reservationdomain "github.com/openrental/reserva/internal/reservation/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is an ordered sequence of pricing lines plus their sum.
type Quote struct {
	Items []reservationdomain.PricingItem
	Total decimal.Decimal
}

type AddOn struct {
	Code      string
	DailyRate decimal.Decimal
}

type Input struct {
	PickupAt      time.Time
	DropoffAt     time.Time
	DailyBaseRate decimal.Decimal
	AddOns        []AddOn
	// TaxRate and DiscountRate are percentages, e.g. 16 for 16%. Zero
	// disables the line.
	TaxRate      decimal.Decimal
	DiscountRate decimal.Decimal
}

// RentalDays counts chargeable days: any started day counts in full, with a
// minimum of one.
func RentalDays(pickupAt, dropoffAt time.Time) int {
	delta := dropoffAt.Sub(pickupAt)
	if delta <= 0 {
		return 1
	}
	days := int(delta / (24 * time.Hour))
	if delta%(24*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// Calculate is deterministic: same input, same quote. It fails only on
// malformed input.
func Calculate(in Input) (*Quote, error) {
	if !in.PickupAt.Before(in.DropoffAt) {
		return nil, &reservationdomain.ValidationError{Field: "pickup_at", Message: "must be before dropoff_at"}
	}
	if in.DailyBaseRate.IsNegative() || in.DailyBaseRate.IsZero() {
		return nil, &reservationdomain.ValidationError{Field: "daily_base_rate", Message: "must be positive"}
	}
	if in.TaxRate.IsNegative() {
		return nil, &reservationdomain.ValidationError{Field: "tax_rate", Message: "must not be negative"}
	}
	if in.DiscountRate.IsNegative() || in.DiscountRate.GreaterThan(hundred) {
		return nil, &reservationdomain.ValidationError{Field: "discount_rate", Message: "must be between 0 and 100"}
	}

	days := RentalDays(in.PickupAt, in.DropoffAt)
	daysDec := decimal.NewFromInt(int64(days))

	items := make([]reservationdomain.PricingItem, 0, len(in.AddOns)+3)

	base := roundLine(in.DailyBaseRate.Mul(daysDec))
	items = append(items, reservationdomain.PricingItem{
		Kind:        reservationdomain.PricingItemBaseRate,
		Description: fmt.Sprintf("Base rate, %d day(s) x %s", days, in.DailyBaseRate.StringFixed(2)),
		Amount:      base,
	})

	subtotal := base
	for _, addOn := range in.AddOns {
		if addOn.DailyRate.IsNegative() {
			return nil, &reservationdomain.ValidationError{Field: "add_ons", Message: "daily rate must not be negative"}
		}
		amount := roundLine(addOn.DailyRate.Mul(daysDec))
		items = append(items, reservationdomain.PricingItem{
			Kind:        reservationdomain.PricingItemExtra,
			Description: fmt.Sprintf("%s, %d day(s) x %s", strings.ToUpper(addOn.Code), days, addOn.DailyRate.StringFixed(2)),
			Amount:      amount,
		})
		subtotal = subtotal.Add(amount)
	}

	if in.DiscountRate.IsPositive() {
		discount := roundLine(subtotal.Mul(in.DiscountRate).Div(hundred))
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
		items = append(items, reservationdomain.PricingItem{
			Kind:        reservationdomain.PricingItemDiscount,
			Description: fmt.Sprintf("Discount %s%%", in.DiscountRate.StringFixed(2)),
			Amount:      discount.Neg(),
		})
		subtotal = subtotal.Sub(discount)
	}

	if in.TaxRate.IsPositive() {
		tax := roundLine(subtotal.Mul(in.TaxRate).Div(hundred))
		items = append(items, reservationdomain.PricingItem{
			Kind:        reservationdomain.PricingItemTax,
			Description: fmt.Sprintf("Tax %s%%", in.TaxRate.StringFixed(2)),
			Amount:      tax,
		})
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}

	return &Quote{Items: items, Total: total}, nil
}

// roundLine rounds to 2 decimal places with round-half-even to avoid the
// systematic drift of round-half-up across many lines.
func roundLine(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

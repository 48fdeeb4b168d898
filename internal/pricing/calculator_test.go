package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	reservationdomain "github.com/openrental/reserva/internal/reservation/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRentalDaysCeiling(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		dropoff time.Time
		want    int
	}{
		{"exact three days", pickup.AddDate(0, 0, 3), 3},
		{"three days and one hour", pickup.AddDate(0, 0, 3).Add(time.Hour), 4},
		{"under one day", pickup.Add(6 * time.Hour), 1},
		{"zero duration", pickup, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RentalDays(pickup, tc.dropoff); got != tc.want {
				t.Fatalf("RentalDays = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCalculateThreeDayRentalWithAddOn(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	quote, err := Calculate(Input{
		PickupAt:      pickup,
		DropoffAt:     pickup.AddDate(0, 0, 3),
		DailyBaseRate: d("49.99"),
		AddOns:        []AddOn{{Code: "gps", DailyRate: d("9.99")}},
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if got := quote.Total.StringFixed(2); got != "179.94" {
		t.Fatalf("total = %s, want 179.94", got)
	}
	if len(quote.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(quote.Items))
	}
	if quote.Items[0].Amount.StringFixed(2) != "149.97" {
		t.Fatalf("base = %s, want 149.97", quote.Items[0].Amount.StringFixed(2))
	}
	if quote.Items[1].Amount.StringFixed(2) != "29.97" {
		t.Fatalf("add-on = %s, want 29.97", quote.Items[1].Amount.StringFixed(2))
	}
}

func TestCalculateRoundsHalfEvenPerLine(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	// 10.005 * 1 day: round-half-even at cents gives 10.00, not 10.01.
	quote, err := Calculate(Input{
		PickupAt:      pickup,
		DropoffAt:     pickup.AddDate(0, 0, 1),
		DailyBaseRate: d("10.005"),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got := quote.Total.StringFixed(2); got != "10.00" {
		t.Fatalf("total = %s, want 10.00", got)
	}
}

func TestCalculateDiscountAndTaxOrdering(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	quote, err := Calculate(Input{
		PickupAt:      pickup,
		DropoffAt:     pickup.AddDate(0, 0, 2),
		DailyBaseRate: d("100.00"),
		DiscountRate:  d("10"),
		TaxRate:       d("16"),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	// 200 base, -20 discount, tax on 180 = 28.80, total 208.80
	if got := quote.Total.StringFixed(2); got != "208.80" {
		t.Fatalf("total = %s, want 208.80", got)
	}

	var discount, tax decimal.Decimal
	for _, item := range quote.Items {
		switch item.Kind {
		case reservationdomain.PricingItemDiscount:
			discount = item.Amount
		case reservationdomain.PricingItemTax:
			tax = item.Amount
		}
	}
	if discount.StringFixed(2) != "-20.00" {
		t.Fatalf("discount = %s, want -20.00", discount.StringFixed(2))
	}
	if tax.StringFixed(2) != "28.80" {
		t.Fatalf("tax = %s, want 28.80", tax.StringFixed(2))
	}
}

func TestCalculateDiscountNeverExceedsSubtotal(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	quote, err := Calculate(Input{
		PickupAt:      pickup,
		DropoffAt:     pickup.AddDate(0, 0, 1),
		DailyBaseRate: d("50.00"),
		DiscountRate:  d("100"),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !quote.Total.IsZero() {
		t.Fatalf("total = %s, want 0.00", quote.Total.StringFixed(2))
	}
}

func TestCalculateDeterministic(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	in := Input{
		PickupAt:      pickup,
		DropoffAt:     pickup.AddDate(0, 0, 5),
		DailyBaseRate: d("37.77"),
		AddOns:        []AddOn{{Code: "child_seat", DailyRate: d("4.44")}},
		TaxRate:       d("19"),
		DiscountRate:  d("5"),
	}
	first, err := Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	second, err := Calculate(in)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !first.Total.Equal(second.Total) {
		t.Fatalf("totals differ: %s vs %s", first.Total, second.Total)
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	pickup := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	var verr *reservationdomain.ValidationError

	_, err := Calculate(Input{PickupAt: pickup, DropoffAt: pickup, DailyBaseRate: d("10")})
	if !asValidation(err, &verr) {
		t.Fatalf("expected validation error for period, got %v", err)
	}

	_, err = Calculate(Input{PickupAt: pickup, DropoffAt: pickup.AddDate(0, 0, 1), DailyBaseRate: d("0")})
	if !asValidation(err, &verr) {
		t.Fatalf("expected validation error for rate, got %v", err)
	}

	_, err = Calculate(Input{PickupAt: pickup, DropoffAt: pickup.AddDate(0, 0, 1), DailyBaseRate: d("10"), DiscountRate: d("101")})
	if !asValidation(err, &verr) {
		t.Fatalf("expected validation error for discount, got %v", err)
	}
}

func asValidation(err error, target **reservationdomain.ValidationError) bool {
	if err == nil {
		return false
	}
	v, ok := err.(*reservationdomain.ValidationError)
	if ok {
		*target = v
	}
	return ok
}

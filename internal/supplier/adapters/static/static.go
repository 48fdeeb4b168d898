// Package static is a deterministic local vendor used when a supplier code
// has no configured endpoint. Reservation codes containing "REJECT" are
// rejected; "DOWN" simulates an outage.
package static

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openrental/reserva/internal/supplier/domain"
)

type Client struct {
	code string
	seq  atomic.Int64
}

func NewClient(code string) *Client {
	return &Client{code: strings.ToLower(code)}
}

func (c *Client) Code() string { return c.code }

// fleet is the deterministic sandbox inventory, priced per day.
var fleet = []struct {
	name     string
	acriss   string
	category string
	daily    string
	doors    int
	seats    int
	auto     bool
}{
	{"Fiat Mobi", "MBMR", "ECONOMY", "29.99", 4, 4, false},
	{"VW Polo", "CDAR", "COMPACT", "49.99", 4, 5, true},
	{"Jeep Compass", "IFAR", "SUV", "89.99", 4, 5, true},
}

func (c *Client) SearchAvailability(ctx context.Context, req domain.AvailabilitySearch) ([]domain.VehicleOffer, error) {
	if strings.Contains(req.PickupOfficeCode, "DOWN") {
		return nil, &domain.UnavailableError{Supplier: c.code, Err: fmt.Errorf("static outage")}
	}
	if req.DriverAge > 0 && req.DriverAge < 21 {
		return []domain.VehicleOffer{}, nil
	}

	days := int(req.DropoffAt.Sub(req.PickupAt).Hours() / 24)
	if req.DropoffAt.Sub(req.PickupAt)%(24*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}

	offers := make([]domain.VehicleOffer, 0, len(fleet))
	for _, v := range fleet {
		daily := decimal.RequireFromString(v.daily)
		transmission := "MANUAL"
		if v.auto {
			transmission = "AUTOMATIC"
		}
		offers = append(offers, domain.VehicleOffer{
			SupplierCode: c.code,
			ProductCode:  fmt.Sprintf("%s-%s", strings.ToUpper(c.code), v.acriss),
			VehicleName:  v.name,
			ACRISSCode:   v.acriss,
			Category:     v.category,
			DailyRate:    daily,
			TotalPrice:   daily.Mul(decimal.NewFromInt(int64(days))),
			Currency:     "USD",
			Transmission: transmission,
			Doors:        v.doors,
			Seats:        v.seats,
			AirCon:       true,
		})
	}
	return offers, nil
}

func (c *Client) Confirm(ctx context.Context, req domain.ConfirmationRequest) (*domain.Confirmation, error) {
	switch {
	case strings.Contains(req.ReservationCode, "REJECT"):
		return nil, &domain.RejectedError{Supplier: c.code, Code: "no_availability", Message: "static rejection"}
	case strings.Contains(req.ReservationCode, "DOWN"):
		return nil, &domain.UnavailableError{Supplier: c.code, Err: fmt.Errorf("static outage")}
	}

	return &domain.Confirmation{
		ConfirmationCode: fmt.Sprintf("%s-%06d", strings.ToUpper(c.code), c.seq.Add(1)),
		ConfirmedAt:      time.Now().UTC(),
	}, nil
}

func (c *Client) Cancel(ctx context.Context, confirmationCode string) error {
	return nil
}

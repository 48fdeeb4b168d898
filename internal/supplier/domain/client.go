// Package domain defines the supplier port: the uniform capability surface
// used to search availability and to confirm and cancel reservations with
// vendors.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Client is implemented once per vendor protocol. Implementations own their
// wire format and auth; callers only see this interface.
type Client interface {
	Code() string
	SearchAvailability(ctx context.Context, req AvailabilitySearch) ([]VehicleOffer, error)
	Confirm(ctx context.Context, req ConfirmationRequest) (*Confirmation, error)
	Cancel(ctx context.Context, confirmationCode string) error
}

// AvailabilitySearch asks a vendor what it can rent for a period. Office
// codes are pass-through vendor identifiers.
type AvailabilitySearch struct {
	PickupOfficeCode  string
	DropoffOfficeCode string
	PickupAt          time.Time
	DropoffAt         time.Time
	DriverAge         int
}

// VehicleOffer is one rentable vehicle returned by a vendor search.
type VehicleOffer struct {
	SupplierCode string          `json:"supplier_code"`
	ProductCode  string          `json:"product_code,omitempty"`
	VehicleName  string          `json:"vehicle_name"`
	ACRISSCode   string          `json:"acriss_code"`
	Category     string          `json:"category"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Currency     string          `json:"currency"`
	Transmission string          `json:"transmission,omitempty"`
	Doors        int             `json:"doors,omitempty"`
	Seats        int             `json:"seats,omitempty"`
	AirCon       bool            `json:"air_conditioning"`
}

// ConfirmationRequest is a snapshot of the committed reservation; the
// supplier call happens after the local commit, so everything here is
// already durable.
type ConfirmationRequest struct {
	ReservationCode   string
	PickupOfficeCode  string
	DropoffOfficeCode string
	PickupAt          time.Time
	DropoffAt         time.Time
	VehicleACRISS     string
	DriverFirstName   string
	DriverLastName    string
	DriverEmail       string
	DriverPhone       string
}

type Confirmation struct {
	ConfirmationCode string
	ConfirmedAt      time.Time
}

// ClientFactory builds a Client for one vendor integration.
type ClientFactory interface {
	Code() string
	NewClient(cfg ClientConfig) (Client, error)
}

type ClientConfig struct {
	Code     string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

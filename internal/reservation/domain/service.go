package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Service is the reservation commit boundary exposed to the HTTP layer.
type Service interface {
	// CreateReservation runs the full commit protocol: idempotency guard,
	// pricing, charge, transactional persist with outbox rows, supplier
	// confirmation, finalization.
	CreateReservation(ctx context.Context, req CreateReservationRequest) (*ReservationResult, error)
	CancelReservation(ctx context.Context, req CancelReservationRequest) (*ReservationResult, error)
	CompleteReservation(ctx context.Context, id string) (*ReservationResult, error)
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (*Reservation, error)
	ListReservations(ctx context.Context, filter ListFilter) ([]Reservation, int64, error)
}

type DriverInput struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DateOfBirth    time.Time
	LicenseNumber  string
	LicenseCountry string
	IsPrimary      bool
}

type AddOnInput struct {
	Code      string
	DailyRate decimal.Decimal
}

// CreateReservationRequest is a validated reservation request. The
// idempotency key scopes "same logical request" across retries.
type CreateReservationRequest struct {
	IdempotencyKey string

	SupplierCode    string
	CustomerRef     string
	VehicleACRISS   string
	VehicleCategory string

	PickupAt          time.Time
	DropoffAt         time.Time
	PickupOfficeCode  string
	DropoffOfficeCode string

	Currency      string
	DailyBaseRate decimal.Decimal
	AddOns        []AddOnInput
	TaxRate       decimal.Decimal
	DiscountRate  decimal.Decimal

	PaymentMethodRef string
	SalesChannel     string

	Drivers []DriverInput
}

// ReservationResult is the stable success payload. It is also what a
// replayed idempotency key receives.
type ReservationResult struct {
	ReservationID            string          `json:"reservation_id"`
	ReservationCode          string          `json:"reservation_code"`
	Status                   Status          `json:"status"`
	PaymentState             PaymentState    `json:"payment_state"`
	SupplierConfirmationCode string          `json:"supplier_confirmation_code,omitempty"`
	TotalPrice               decimal.Decimal `json:"total_price"`
	Currency                 string          `json:"currency"`
	ReceiptURL               string          `json:"receipt_url,omitempty"`
}

type CancelReservationRequest struct {
	ID     string
	Reason string
}

// Package domain contains the reservation aggregate and its lifecycle rules.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status is the reservation lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// PaymentState mirrors the charge outcome on the reservation row itself so
// list queries do not need a join.
type PaymentState string

const (
	PaymentStateUnpaid   PaymentState = "UNPAID"
	PaymentStatePaid     PaymentState = "PAID"
	PaymentStateRefunded PaymentState = "REFUNDED"
)

// MinimumDriverAge is enforced at pickup time, not at validation time only.
const MinimumDriverAge = 21

// Reservation is the aggregate root. Drivers, Contacts and PricingItems are
// owned exclusively and deleted with it. All state changes go through Apply.
type Reservation struct {
	ID   snowflake.ID `json:"id" gorm:"primaryKey"`
	Code string       `json:"code" gorm:"type:text;not null;uniqueIndex"`

	Status       Status       `json:"status" gorm:"type:text;not null"`
	PaymentState PaymentState `json:"payment_state" gorm:"type:text;not null"`

	CustomerRef  string `json:"customer_ref" gorm:"type:text;index"`
	SupplierCode string `json:"supplier_code" gorm:"type:text;not null;index"`

	PickupAt   time.Time `json:"pickup_at" gorm:"not null"`
	DropoffAt  time.Time `json:"dropoff_at" gorm:"not null"`
	RentalDays int       `json:"rental_days" gorm:"not null"`

	VehicleACRISS   string `json:"vehicle_acriss" gorm:"type:text"`
	VehicleCategory string `json:"vehicle_category" gorm:"type:text"`

	PickupOfficeCode  string `json:"pickup_office_code" gorm:"type:text"`
	DropoffOfficeCode string `json:"dropoff_office_code" gorm:"type:text"`
	SupplierName      string `json:"supplier_name" gorm:"type:text"`
	SalesChannel      string `json:"sales_channel" gorm:"type:text"`

	Currency   string          `json:"currency" gorm:"type:text;not null"`
	TotalPrice decimal.Decimal `json:"total_price" gorm:"type:decimal(12,2);not null"`

	SupplierConfirmationCode string     `json:"supplier_confirmation_code" gorm:"type:text"`
	SupplierConfirmedAt      *time.Time `json:"supplier_confirmed_at"`

	FailureReason string `json:"failure_reason,omitempty" gorm:"type:text"`

	CancelledAt  *time.Time `json:"cancelled_at"`
	CancelReason string     `json:"cancel_reason,omitempty" gorm:"type:text"`

	Drivers      []Driver      `json:"drivers" gorm:"constraint:OnDelete:CASCADE;foreignKey:ReservationID"`
	Contacts     []Contact     `json:"contacts" gorm:"constraint:OnDelete:CASCADE;foreignKey:ReservationID"`
	PricingItems []PricingItem `json:"pricing_items" gorm:"constraint:OnDelete:CASCADE;foreignKey:ReservationID"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`

	// events buffers uncommitted domain events. Drained only inside a
	// unit-of-work scope, never published directly.
	events []Event `json:"-" gorm:"-"`
}

func (Reservation) TableName() string { return "reservations" }

type Driver struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ReservationID  snowflake.ID `json:"reservation_id" gorm:"not null;index"`
	IsPrimary      bool         `json:"is_primary" gorm:"not null"`
	FirstName      string       `json:"first_name" gorm:"type:text;not null"`
	LastName       string       `json:"last_name" gorm:"type:text;not null"`
	Email          string       `json:"email" gorm:"type:text"`
	Phone          string       `json:"phone" gorm:"type:text"`
	DateOfBirth    time.Time    `json:"date_of_birth" gorm:"not null"`
	LicenseNumber  string       `json:"license_number" gorm:"type:text"`
	LicenseCountry string       `json:"license_country" gorm:"type:text"`
}

func (Driver) TableName() string { return "reservation_drivers" }

func (d Driver) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// AgeAt returns the driver's age in whole years at the given instant.
func (d Driver) AgeAt(at time.Time) int {
	years := at.Year() - d.DateOfBirth.Year()
	anniversary := d.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

type ContactType string

const (
	ContactTypeBooker    ContactType = "BOOKER"
	ContactTypeEmergency ContactType = "EMERGENCY"
)

type Contact struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID `json:"reservation_id" gorm:"not null;index"`
	ContactType   ContactType  `json:"contact_type" gorm:"type:text;not null"`
	FullName      string       `json:"full_name" gorm:"type:text;not null"`
	Email         string       `json:"email" gorm:"type:text;not null"`
	Phone         string       `json:"phone" gorm:"type:text"`
}

func (Contact) TableName() string { return "reservation_contacts" }

type PricingItemKind string

const (
	PricingItemBaseRate  PricingItemKind = "BASE_RATE"
	PricingItemExtra     PricingItemKind = "EXTRA"
	PricingItemTax       PricingItemKind = "TAX"
	PricingItemFee       PricingItemKind = "FEE"
	PricingItemInsurance PricingItemKind = "INSURANCE"
	PricingItemDiscount  PricingItemKind = "DISCOUNT"
)

// PricingItem is one signed line of the reservation price. Amounts are
// already rounded to cents; the aggregate total is their raw sum.
type PricingItem struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID    `json:"reservation_id" gorm:"not null;index"`
	Kind          PricingItemKind `json:"kind" gorm:"type:text;not null"`
	Description   string          `json:"description" gorm:"type:text;not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Position      int             `json:"position" gorm:"not null"`
}

func (PricingItem) TableName() string { return "reservation_pricing_items" }

// NewReservation is the only way a Reservation comes into existence. It
// establishes PENDING/UNPAID and buffers the ReservationCreated event.
func NewReservation(id snowflake.ID, code, supplierCode, currency string, pickupAt, dropoffAt time.Time, now time.Time) (*Reservation, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidReservationCode
	}
	if strings.TrimSpace(supplierCode) == "" {
		return nil, ErrInvalidSupplier
	}
	if !pickupAt.Before(dropoffAt) {
		return nil, ErrInvalidRentalPeriod
	}

	r := &Reservation{
		ID:           id,
		Code:         code,
		Status:       StatusPending,
		PaymentState: PaymentStateUnpaid,
		SupplierCode: strings.ToLower(strings.TrimSpace(supplierCode)),
		PickupAt:     pickupAt.UTC(),
		DropoffAt:    dropoffAt.UTC(),
		Currency:     strings.ToUpper(currency),
		TotalPrice:   decimal.Zero,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}

	r.record(Event{
		Type:       EventTypeReservationCreated,
		OccurredAt: now.UTC(),
		Payload: map[string]any{
			"reservation_code": code,
			"supplier_code":    r.SupplierCode,
			"pickup_at":        r.PickupAt.Format(time.RFC3339),
			"dropoff_at":       r.DropoffAt.Format(time.RFC3339),
			"currency":         r.Currency,
		},
	})

	return r, nil
}

// AddDriver validates the underage invariant before the aggregate accepts
// the mutation, regardless of call order.
func (r *Reservation) AddDriver(id snowflake.ID, first, last, email, phone string, dateOfBirth time.Time, license, licenseCountry string, primary bool) error {
	if strings.TrimSpace(first) == "" || strings.TrimSpace(last) == "" {
		return ErrDriverNameRequired
	}
	driver := Driver{
		ID:             id,
		ReservationID:  r.ID,
		IsPrimary:      primary,
		FirstName:      strings.TrimSpace(first),
		LastName:       strings.TrimSpace(last),
		Email:          strings.TrimSpace(email),
		Phone:          strings.TrimSpace(phone),
		DateOfBirth:    dateOfBirth,
		LicenseNumber:  strings.TrimSpace(license),
		LicenseCountry: strings.ToUpper(strings.TrimSpace(licenseCountry)),
	}
	if dateOfBirth.IsZero() {
		return ErrDriverBirthDateRequired
	}
	if driver.AgeAt(r.PickupAt) < MinimumDriverAge {
		return &UnderageDriverError{Driver: driver.FullName(), Age: driver.AgeAt(r.PickupAt)}
	}
	r.Drivers = append(r.Drivers, driver)
	return nil
}

func (r *Reservation) AddContact(id snowflake.ID, contactType ContactType, fullName, email, phone string) error {
	if strings.TrimSpace(email) == "" {
		return ErrContactEmailRequired
	}
	r.Contacts = append(r.Contacts, Contact{
		ID:            id,
		ReservationID: r.ID,
		ContactType:   contactType,
		FullName:      strings.TrimSpace(fullName),
		Email:         strings.TrimSpace(email),
		Phone:         strings.TrimSpace(phone),
	})
	return nil
}

// SetPricing replaces the pricing lines and recomputes the total. The total
// is never assigned independently of the items.
func (r *Reservation) SetPricing(items []PricingItem, rentalDays int) {
	total := decimal.Zero
	for i := range items {
		items[i].ReservationID = r.ID
		items[i].Position = i
		total = total.Add(items[i].Amount)
	}
	r.PricingItems = items
	r.RentalDays = rentalDays
	r.TotalPrice = total
}

// MarkPaid records the successful capture and buffers the PaymentCaptured
// event so it commits with the reservation row.
func (r *Reservation) MarkPaid(providerRef string, amount decimal.Decimal, now time.Time) {
	r.PaymentState = PaymentStatePaid
	r.record(Event{
		Type:       EventTypePaymentCaptured,
		OccurredAt: now.UTC(),
		Payload: map[string]any{
			"reservation_code": r.Code,
			"provider_ref":     providerRef,
			"amount":           amount.StringFixed(2),
			"currency":         r.Currency,
		},
	})
}

// RequestRefund buffers the RefundRequested compensation event. The outbox
// relay delivers it even if the immediate refund attempt fails.
func (r *Reservation) RequestRefund(providerRef, reason string, amount decimal.Decimal, now time.Time) {
	r.record(Event{
		Type:       EventTypeRefundRequested,
		OccurredAt: now.UTC(),
		Payload: map[string]any{
			"reservation_code": r.Code,
			"provider_ref":     providerRef,
			"amount":           amount.StringFixed(2),
			"currency":         r.Currency,
			"reason":           reason,
		},
	})
}

// MarkRefunded mirrors the refunded charge onto the reservation row.
func (r *Reservation) MarkRefunded() {
	r.PaymentState = PaymentStateRefunded
}

func (r *Reservation) PrimaryContactEmail() string {
	for _, c := range r.Contacts {
		if c.ContactType == ContactTypeBooker {
			return c.Email
		}
	}
	if len(r.Contacts) > 0 {
		return r.Contacts[0].Email
	}
	return ""
}

func (r *Reservation) record(ev Event) {
	ev.AggregateID = r.ID
	r.events = append(r.events, ev)
}

// DrainEvents returns the buffered events and clears the buffer. Callers
// must only invoke it inside the unit-of-work scope that persists them.
func (r *Reservation) DrainEvents() []Event {
	events := r.events
	r.events = nil
	return events
}

// PendingEvents exposes the buffer without draining it, for assertions.
func (r *Reservation) PendingEvents() []Event {
	return r.events
}

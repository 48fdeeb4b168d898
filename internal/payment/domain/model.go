// Package domain contains the payment record and the gateway port.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Payment records one charge attempt against exactly one reservation.
// Status moves only through the orchestrator; the one exception is the
// explicit refund compensation.
type Payment struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID    `json:"reservation_id" gorm:"not null;index"`
	Provider      string          `json:"provider" gorm:"type:text;not null"`
	ProviderRef   string          `json:"provider_ref" gorm:"type:text"`
	IntentRef     string          `json:"intent_ref" gorm:"type:text"`
	Method        string          `json:"method" gorm:"type:text"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency      string          `json:"currency" gorm:"type:text;not null"`
	Status        PaymentStatus   `json:"status" gorm:"type:text;not null"`
	FailureReason string          `json:"failure_reason,omitempty" gorm:"type:text"`
	CapturedAt    *time.Time      `json:"captured_at"`
	RefundedAt    *time.Time      `json:"refunded_at"`
	RefundRef     string          `json:"refund_ref,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// NewCaptured builds the PAID payment row for a successful charge.
func NewCaptured(id, reservationID snowflake.ID, provider string, result *ChargeResult, amount decimal.Decimal, currency string, now time.Time) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	capturedAt := now.UTC()
	return &Payment{
		ID:            id,
		ReservationID: reservationID,
		Provider:      provider,
		ProviderRef:   result.Reference,
		IntentRef:     result.IntentReference,
		Method:        result.Method,
		Amount:        amount,
		Currency:      currency,
		Status:        PaymentStatusPaid,
		CapturedAt:    &capturedAt,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

// MarkRefunded is the explicit compensation path.
func (p *Payment) MarkRefunded(refundRef string, now time.Time) {
	refundedAt := now.UTC()
	p.Status = PaymentStatusRefunded
	p.RefundRef = refundRef
	p.RefundedAt = &refundedAt
	p.UpdatedAt = now.UTC()
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RequestType string

const (
	RequestTypeConfirm RequestType = "CONFIRM"
	RequestTypeCancel  RequestType = "CANCEL"
)

type RequestStatus string

const (
	RequestStatusSuccess RequestStatus = "SUCCESS"
	RequestStatusFailed  RequestStatus = "FAILED"
)

// Request is the audit record of one call made to a vendor on behalf of a
// reservation.
type Request struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID   `json:"reservation_id" gorm:"not null;index"`
	SupplierCode  string         `json:"supplier_code" gorm:"type:text;not null"`
	RequestType   RequestType    `json:"request_type" gorm:"type:text;not null"`
	Status        RequestStatus  `json:"status" gorm:"type:text;not null"`
	Response      datatypes.JSON `json:"response,omitempty" gorm:"type:jsonb"`
	ErrorMessage  string         `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (Request) TableName() string { return "supplier_requests" }

type RequestRepository interface {
	Insert(ctx context.Context, db *gorm.DB, request *Request) error
	ListByReservationID(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) ([]Request, error)
}

package service

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"

	idemdomain "github.com/openrental/reserva/internal/idempotency/domain"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/reservation/domain"
)

type idemRecord = idemdomain.Record

// Failure codes recorded on the idempotency key so replays reconstruct the
// same typed error the first caller saw.
const (
	failurePaymentDeclined      = "PAYMENT_DECLINED"
	failureSupplierConfirmation = "SUPPLIER_CONFIRMATION_FAILED"
	failurePersistence          = "PERSISTENCE_FAILED"
)

type failureDescriptor struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (d failureDescriptor) asDomainError() error {
	switch d.Code {
	case failurePaymentDeclined:
		return &paymentdomain.DeclinedError{Code: d.Detail, Message: d.Message}
	case failurePersistence:
		return &domain.PersistenceError{CorrelationID: d.Detail, Err: fmt.Errorf("%s", d.Message)}
	default:
		return &domain.ConfirmationError{
			ReservationCode: d.Detail,
			Err:             fmt.Errorf("%s", d.Message),
		}
	}
}

// replay returns the recorded outcome of a finalized key without executing
// any side effect.
func (s *service) replay(record *idemRecord) (*domain.ReservationResult, error) {
	if record.State == idemdomain.StateFailed {
		var descriptor failureDescriptor
		if err := json.Unmarshal(record.Result, &descriptor); err != nil {
			return nil, err
		}
		return nil, descriptor.asDomainError()
	}
	var result domain.ReservationResult
	if err := json.Unmarshal(record.Result, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}

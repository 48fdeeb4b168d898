package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	idemdomain "github.com/openrental/reserva/internal/idempotency/domain"
	"github.com/openrental/reserva/internal/reservation/domain"
)

// validateCreate rejects malformed requests before the guard reserves the
// key, so a bad request never burns an idempotency key.
func (s *service) validateCreate(req domain.CreateReservationRequest) error {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return idemdomain.ErrKeyRequired
	}
	if strings.TrimSpace(req.SupplierCode) == "" {
		return &domain.ValidationError{Field: "supplier_code", Message: "is required"}
	}
	if _, err := s.suppliers.Resolve(req.SupplierCode); err != nil {
		return &domain.ValidationError{Field: "supplier_code", Message: "is not a known supplier"}
	}
	if req.PickupAt.IsZero() || req.DropoffAt.IsZero() {
		return &domain.ValidationError{Field: "pickup_at", Message: "pickup and dropoff are required"}
	}
	if !req.PickupAt.Before(req.DropoffAt) {
		return &domain.ValidationError{Field: "dropoff_at", Message: "must be after pickup_at"}
	}
	if len(req.Currency) != 3 {
		return &domain.ValidationError{Field: "currency", Message: "must be a 3-letter ISO code"}
	}
	if strings.TrimSpace(req.PaymentMethodRef) == "" {
		return &domain.ValidationError{Field: "payment_method_ref", Message: "is required"}
	}
	if len(req.Drivers) == 0 {
		return &domain.ValidationError{Field: "drivers", Message: "at least one driver is required"}
	}
	// Driver rules are enforced here too so a bad driver never reaches the
	// charge step.
	for _, d := range req.Drivers {
		if strings.TrimSpace(d.FirstName) == "" || strings.TrimSpace(d.LastName) == "" {
			return domain.ErrDriverNameRequired
		}
		if d.DateOfBirth.IsZero() {
			return domain.ErrDriverBirthDateRequired
		}
		probe := domain.Driver{FirstName: d.FirstName, LastName: d.LastName, DateOfBirth: d.DateOfBirth}
		if age := probe.AgeAt(req.PickupAt); age < domain.MinimumDriverAge {
			return &domain.UnderageDriverError{Driver: probe.FullName(), Age: age}
		}
	}
	return nil
}

// requestHash canonicalizes the request so the guard can detect the same
// key reused with a different payload. The key itself is excluded.
func requestHash(req domain.CreateReservationRequest) string {
	shadow := req
	shadow.IdempotencyKey = ""
	raw, err := json.Marshal(shadow)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Package localiza is the JSON-over-HTTP client for the Localiza vendor API.
package localiza

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openrental/reserva/internal/supplier/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Code() string { return "localiza" }

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("localiza: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func (c *Client) Code() string { return "localiza" }

func (c *Client) SearchAvailability(ctx context.Context, req domain.AvailabilitySearch) ([]domain.VehicleOffer, error) {
	payload := searchRequest{
		PickupOffice:  req.PickupOfficeCode,
		DropoffOffice: req.DropoffOfficeCode,
		PickupAt:      req.PickupAt.UTC().Format(time.RFC3339),
		DropoffAt:     req.DropoffAt.UTC().Format(time.RFC3339),
		DriverAge:     req.DriverAge,
	}

	var out searchResponse
	if err := c.post(ctx, "/v1/availability", payload, &out); err != nil {
		return nil, err
	}

	offers := make([]domain.VehicleOffer, 0, len(out.Vehicles))
	for _, v := range out.Vehicles {
		offers = append(offers, domain.VehicleOffer{
			SupplierCode: "localiza",
			ProductCode:  v.ProductCode,
			VehicleName:  v.Name,
			ACRISSCode:   v.ACRISSCode,
			Category:     v.Category,
			DailyRate:    v.DailyRate,
			TotalPrice:   v.TotalPrice,
			Currency:     v.Currency,
			Transmission: v.Transmission,
			Doors:        v.Doors,
			Seats:        v.Seats,
			AirCon:       v.AirConditioning,
		})
	}
	return offers, nil
}

func (c *Client) Confirm(ctx context.Context, req domain.ConfirmationRequest) (*domain.Confirmation, error) {
	payload := confirmRequest{
		PartnerCode:   req.ReservationCode,
		PickupOffice:  req.PickupOfficeCode,
		DropoffOffice: req.DropoffOfficeCode,
		PickupAt:      req.PickupAt.UTC().Format(time.RFC3339),
		DropoffAt:     req.DropoffAt.UTC().Format(time.RFC3339),
		VehicleCode:   req.VehicleACRISS,
		Driver: confirmDriver{
			FirstName: req.DriverFirstName,
			LastName:  req.DriverLastName,
			Email:     req.DriverEmail,
			Phone:     req.DriverPhone,
		},
	}

	var out confirmResponse
	if err := c.post(ctx, "/v1/reservations", payload, &out); err != nil {
		return nil, err
	}
	if out.ConfirmationNumber == "" {
		return nil, &domain.RejectedError{Supplier: "localiza", Code: "empty_confirmation", Message: "vendor returned no confirmation number"}
	}

	confirmedAt := time.Now().UTC()
	if out.ConfirmedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, out.ConfirmedAt); err == nil {
			confirmedAt = parsed
		}
	}

	return &domain.Confirmation{
		ConfirmationCode: out.ConfirmationNumber,
		ConfirmedAt:      confirmedAt,
	}, nil
}

func (c *Client) Cancel(ctx context.Context, confirmationCode string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/v1/reservations/%s", c.endpoint, confirmationCode), nil)
	if err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &domain.UnavailableError{Supplier: "localiza", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return &domain.RejectedError{Supplier: "localiza", Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: "cancel rejected"}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &domain.UnavailableError{Supplier: "localiza", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		var vendorErr errorResponse
		if err := json.Unmarshal(raw, &vendorErr); err == nil && vendorErr.Code != "" {
			return &domain.RejectedError{Supplier: "localiza", Code: vendorErr.Code, Message: vendorErr.Message}
		}
		return &domain.RejectedError{Supplier: "localiza", Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.UnavailableError{Supplier: "localiza", Err: err}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

type confirmRequest struct {
	PartnerCode   string        `json:"partner_code"`
	PickupOffice  string        `json:"pickup_office"`
	DropoffOffice string        `json:"dropoff_office"`
	PickupAt      string        `json:"pickup_at"`
	DropoffAt     string        `json:"dropoff_at"`
	VehicleCode   string        `json:"vehicle_code"`
	Driver        confirmDriver `json:"driver"`
}

type confirmDriver struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type confirmResponse struct {
	ConfirmationNumber string `json:"confirmation_number"`
	ConfirmedAt        string `json:"confirmed_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequest struct {
	PickupOffice  string `json:"pickup_office"`
	DropoffOffice string `json:"dropoff_office"`
	PickupAt      string `json:"pickup_at"`
	DropoffAt     string `json:"dropoff_at"`
	DriverAge     int    `json:"driver_age,omitempty"`
}

type searchResponse struct {
	Vehicles []searchVehicle `json:"vehicles"`
}

type searchVehicle struct {
	ProductCode     string          `json:"product_code"`
	Name            string          `json:"name"`
	ACRISSCode      string          `json:"acriss_code"`
	Category        string          `json:"category"`
	DailyRate       decimal.Decimal `json:"daily_rate"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	Transmission    string          `json:"transmission"`
	Doors           int             `json:"doors"`
	Seats           int             `json:"seats"`
	AirConditioning bool            `json:"air_conditioning"`
}

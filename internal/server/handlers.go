package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/openrental/reserva/internal/reservation/domain"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
)

type driverRequest struct {
	FirstName      string    `json:"first_name" binding:"required"`
	LastName       string    `json:"last_name" binding:"required"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	DateOfBirth    time.Time `json:"date_of_birth" binding:"required"`
	LicenseNumber  string    `json:"license_number"`
	LicenseCountry string    `json:"license_country"`
	IsPrimary      bool      `json:"is_primary"`
}

type addOnRequest struct {
	Code      string          `json:"code" binding:"required"`
	DailyRate decimal.Decimal `json:"daily_rate"`
}

type createReservationRequest struct {
	SupplierCode      string          `json:"supplier_code" binding:"required"`
	CustomerRef       string          `json:"customer_ref"`
	VehicleACRISS     string          `json:"vehicle_acriss"`
	VehicleCategory   string          `json:"vehicle_category"`
	PickupAt          time.Time       `json:"pickup_at" binding:"required"`
	DropoffAt         time.Time       `json:"dropoff_at" binding:"required"`
	PickupOfficeCode  string          `json:"pickup_office_code"`
	DropoffOfficeCode string          `json:"dropoff_office_code"`
	Currency          string          `json:"currency" binding:"required"`
	DailyBaseRate     decimal.Decimal `json:"daily_base_rate"`
	AddOns            []addOnRequest  `json:"add_ons"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	DiscountRate      decimal.Decimal `json:"discount_rate"`
	PaymentMethodRef  string          `json:"payment_method_ref" binding:"required"`
	SalesChannel      string          `json:"sales_channel"`
	Drivers           []driverRequest `json:"drivers" binding:"required"`
}

// searchAvailability fans the query out to one vendor. Office codes are
// passed through untranslated.
func (s *Server) searchAvailability(c *gin.Context) {
	var query struct {
		Supplier          string    `form:"supplier" binding:"required"`
		PickupOfficeCode  string    `form:"pickup_office_code"`
		DropoffOfficeCode string    `form:"dropoff_office_code"`
		PickupAt          time.Time `form:"pickup_at" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		DropoffAt         time.Time `form:"dropoff_at" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		DriverAge         int       `form:"driver_age"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !query.PickupAt.Before(query.DropoffAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dropoff_at must be after pickup_at"})
		return
	}

	client, err := s.suppliers.Resolve(query.Supplier)
	if err != nil {
		s.renderError(c, err)
		return
	}

	offers, err := client.SearchAvailability(c.Request.Context(), supplierdomain.AvailabilitySearch{
		PickupOfficeCode:  query.PickupOfficeCode,
		DropoffOfficeCode: query.DropoffOfficeCode,
		PickupAt:          query.PickupAt,
		DropoffAt:         query.DropoffAt,
		DriverAge:         query.DriverAge,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"supplier": client.Code(),
		"offers":   offers,
	})
}

func (s *Server) createReservation(c *gin.Context) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
		return
	}

	var body createReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := domain.CreateReservationRequest{
		IdempotencyKey:    key,
		SupplierCode:      body.SupplierCode,
		CustomerRef:       body.CustomerRef,
		VehicleACRISS:     body.VehicleACRISS,
		VehicleCategory:   body.VehicleCategory,
		PickupAt:          body.PickupAt,
		DropoffAt:         body.DropoffAt,
		PickupOfficeCode:  body.PickupOfficeCode,
		DropoffOfficeCode: body.DropoffOfficeCode,
		Currency:          body.Currency,
		DailyBaseRate:     body.DailyBaseRate,
		TaxRate:           body.TaxRate,
		DiscountRate:      body.DiscountRate,
		PaymentMethodRef:  body.PaymentMethodRef,
		SalesChannel:      body.SalesChannel,
	}
	for _, a := range body.AddOns {
		req.AddOns = append(req.AddOns, domain.AddOnInput{Code: a.Code, DailyRate: a.DailyRate})
	}
	for _, d := range body.Drivers {
		req.Drivers = append(req.Drivers, domain.DriverInput{
			FirstName:      d.FirstName,
			LastName:       d.LastName,
			Email:          d.Email,
			Phone:          d.Phone,
			DateOfBirth:    d.DateOfBirth,
			LicenseNumber:  d.LicenseNumber,
			LicenseCountry: d.LicenseCountry,
			IsPrimary:      d.IsPrimary,
		})
	}

	result, err := s.reservationSvc.CreateReservation(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// getReservation resolves by reservation code when the path segment looks
// like one, otherwise by id.
func (s *Server) getReservation(c *gin.Context) {
	reservation, err := s.resolve(c)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (s *Server) resolve(c *gin.Context) (*domain.Reservation, error) {
	ref := c.Param("ref")
	if domain.ValidCode(ref) {
		return s.reservationSvc.GetReservationByCode(c.Request.Context(), ref)
	}
	return s.reservationSvc.GetReservation(c.Request.Context(), ref)
}

func (s *Server) listReservations(c *gin.Context) {
	var query struct {
		Status   string `form:"status"`
		Supplier string `form:"supplier"`
		Page     int    `form:"page,default=1"`
		PageSize int    `form:"page_size,default=20"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reservations, total, err := s.reservationSvc.ListReservations(c.Request.Context(), domain.ListFilter{
		Status:   domain.Status(query.Status),
		Supplier: query.Supplier,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reservations": reservations,
		"total":        total,
		"page":         query.Page,
		"page_size":    query.PageSize,
	})
}

func (s *Server) cancelReservation(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	reservation, err := s.resolve(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	result, err := s.reservationSvc.CancelReservation(c.Request.Context(), domain.CancelReservationRequest{
		ID:     reservation.ID.String(),
		Reason: body.Reason,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) completeReservation(c *gin.Context) {
	reservation, err := s.resolve(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	result, err := s.reservationSvc.CompleteReservation(c.Request.Context(), reservation.ID.String())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getReceipt(c *gin.Context) {
	reservation, err := s.resolve(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	payment, err := s.payments.FindCaptured(c.Request.Context(), s.db, reservation.ID)
	if err != nil {
		s.renderError(c, err)
		return
	}

	pdf, err := s.receipts.Render(c.Request.Context(), reservation, payment)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt-`+reservation.Code+`.pdf"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, pdf)
}

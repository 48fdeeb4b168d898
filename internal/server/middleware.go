package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	idemdomain "github.com/openrental/reserva/internal/idempotency/domain"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/receipt"
	"github.com/openrental/reserva/internal/reservation/domain"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
)

// renderError maps domain errors to HTTP responses. Anything unmapped is a
// 500 with the detail kept out of the body.
func (s *Server) renderError(c *gin.Context, err error) {
	var (
		validation   *domain.ValidationError
		underage     *domain.UnderageDriverError
		mismatched   *idemdomain.MismatchedRequestError
		declined     *paymentdomain.DeclinedError
		processor    *paymentdomain.ProcessorError
		confirmation *domain.ConfirmationError
		transition   *domain.InvalidStateTransitionError
		persistence  *domain.PersistenceError
		unavailable  *supplierdomain.UnavailableError
	)

	switch {
	case errors.As(err, &validation),
		errors.As(err, &underage),
		errors.Is(err, idemdomain.ErrKeyRequired),
		errors.Is(err, domain.ErrInvalidRentalPeriod),
		errors.Is(err, domain.ErrDriverNameRequired),
		errors.Is(err, domain.ErrDriverBirthDateRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &mismatched):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateInFlight):
		c.Header("Retry-After", "2")
		c.JSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is in flight"})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrReservationNotFound), errors.Is(err, paymentdomain.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
	case errors.Is(err, receipt.ErrNotReceiptable):
		c.JSON(http.StatusConflict, gin.H{"error": "reservation has no receipt"})
	case errors.As(err, &declined):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "payment declined",
			"code":  declined.Code,
		})
	case errors.As(err, &processor):
		// transient at the processor; the abandoned key lets the caller retry
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "payment processor unavailable, retry with the same idempotency key",
			"code":  "payment_processor_error",
		})
	case errors.As(err, &confirmation):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":            "supplier did not confirm the reservation",
			"reservation_code": confirmation.ReservationCode,
		})
	case errors.As(err, &unavailable):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "supplier unavailable",
			"code":  "supplier_unavailable",
		})
	case errors.Is(err, supplierdomain.ErrUnknownSupplier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &persistence):
		s.log.Error("persistence failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "reservation could not be recorded",
			"correlation_id": persistence.CorrelationID,
		})
	default:
		s.log.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// rateLimit throttles reservation creation per client IP. With no limiter
// configured the middleware is a pass-through.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.cfg.RateLimit.Enabled {
			c.Next()
			return
		}
		result, err := s.limiter.Allow(c.Request.Context(),
			"ratelimit:reservations:"+c.ClientIP(),
			s.cfg.RateLimit.Rate, s.cfg.RateLimit.Burst)
		if err != nil {
			// fail open when redis is unreachable
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%.0f", result.RetryAfter.Seconds()+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

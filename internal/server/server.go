// Package server exposes the reservation API over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrental/reserva/internal/config"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/ratelimit"
	"github.com/openrental/reserva/internal/receipt"
	"github.com/openrental/reserva/internal/reservation/domain"
	"github.com/openrental/reserva/internal/supplier"
)

var Module = fx.Module("http.server",
	fx.Provide(
		receipt.NewGenerator,
		NewServer,
		NewEngine,
	),
	fx.Invoke(run),
)

type ServerParams struct {
	fx.In

	Cfg            config.Config
	DB             *gorm.DB
	ReservationSvc domain.Service
	Payments       paymentdomain.Repository
	Receipts       *receipt.Generator
	Suppliers      *supplier.Registry
	Limiter        *ratelimit.TokenBucket `optional:"true"`
	Log            *zap.Logger
}

type Server struct {
	cfg            config.Config
	db             *gorm.DB
	reservationSvc domain.Service
	payments       paymentdomain.Repository
	receipts       *receipt.Generator
	suppliers      *supplier.Registry
	limiter        *ratelimit.TokenBucket
	log            *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		cfg:            p.Cfg,
		db:             p.DB,
		reservationSvc: p.ReservationSvc,
		payments:       p.Payments,
		receipts:       p.Receipts,
		suppliers:      p.Suppliers,
		limiter:        p.Limiter,
		log:            p.Log.Named("http"),
	}
}

func NewEngine(s *Server) *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(metricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/availability", s.searchAvailability)

		reservations := v1.Group("/reservations")
		reservations.POST("", s.rateLimit(), s.createReservation)
		reservations.GET("", s.listReservations)
		reservations.GET("/:ref", s.getReservation)
		reservations.GET("/:ref/receipt", s.getReceipt)
		reservations.POST("/:ref/cancel", s.cancelReservation)
		reservations.POST("/:ref/complete", s.completeReservation)
	}

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/accessgate/internal/config"
	"github.com/smallbiznis/accessgate/internal/observability/logger"
	"github.com/smallbiznis/accessgate/internal/observability/metrics"
	"github.com/smallbiznis/accessgate/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"github.com/smallbiznis/accessgate/internal/ratelimit"
	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultReadTimeout = 15 * time.Second
	shutdownTimeout    = 10 * time.Second
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Engine      *gin.Engine
	PaymentSvc  paymentdomain.Service
	WaitlistSvc waitlistdomain.Service
	Limiter     ratelimit.Limiter
	Metrics     *metrics.ReconcileMetrics `optional:"true"`
}

type Server struct {
	cfg         config.Config
	log         *zap.Logger
	engine      *gin.Engine
	paymentSvc  paymentdomain.Service
	waitlistSvc waitlistdomain.Service
	limiter     ratelimit.Limiter
	metrics     *metrics.ReconcileMetrics
}

type EngineParams struct {
	fx.In

	Cfg         config.Config
	HTTPMetrics *metrics.HTTPMetrics `optional:"true"`
}

// NewEngine builds the gin engine with request logging, metrics and tracing.
// Forwarding headers are honored only from app.trusted_proxies.
func NewEngine(p EngineParams) (*gin.Engine, error) {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(p.Cfg.App.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	engine.Use(gin.Recovery())
	engine.Use(tracing.GinMiddleware(p.Cfg.App.Name))
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths:        []string{"/health", "/metrics"},
		SensitiveHeaders: []string{p.Cfg.Webhook.SignatureHeader},
	}))
	engine.Use(metrics.GinMiddleware(p.HTTPMetrics))
	return engine, nil
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		engine:      p.Engine,
		paymentSvc:  p.PaymentSvc,
		waitlistSvc: p.WaitlistSvc,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/health", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.POST("/webhooks/payments", s.PaymentWebhook)
	s.engine.POST("/waitlist/join", s.JoinWaitlist)
}

// @Summary      Health
// @Tags         system
// @Produce      json
// @Success      200
// @Router       /health [get]
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.cfg.App.Name,
		"version": s.cfg.App.Version,
	})
}

// RunHTTP serves the engine for the lifetime of the fx application.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.App.HTTPAddr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	deadline := cfg.Webhook.Deadline
	if deadline <= 0 {
		deadline = defaultReadTimeout
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: defaultReadTimeout,
		WriteTimeout:      deadline + 5*time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			log.Info("http server shutting down")
			return srv.Shutdown(ctx)
		},
	})
}

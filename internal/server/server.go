package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/config"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	"github.com/smallbiznis/sponsornet/internal/observability"
	obsmiddleware "github.com/smallbiznis/sponsornet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	obstracing "github.com/smallbiznis/sponsornet/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/smallbiznis/sponsornet/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP API. Domain modules are wired by the app.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
		s.RegisterAdminRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	jwtSecret      []byte
	networkSvc     networkdomain.Service
	ledgerSvc      ledgerdomain.Service
	catalogSvc     catalogdomain.Service
	paymentSvc     paymentdomain.Service
	webhookSvc     paymentdomain.WebhookService
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
	webhookLimiter *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	NetworkSvc     networkdomain.Service
	LedgerSvc      ledgerdomain.Service
	CatalogSvc     catalogdomain.Service
	PaymentSvc     paymentdomain.Service
	WebhookSvc     paymentdomain.WebhookService
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		jwtSecret:      []byte(p.Cfg.JWTSecret),
		networkSvc:     p.NetworkSvc,
		ledgerSvc:      p.LedgerSvc,
		catalogSvc:     p.CatalogSvc,
		paymentSvc:     p.PaymentSvc,
		webhookSvc:     p.WebhookSvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
		webhookLimiter: p.WebhookLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// Provider callbacks authenticate by signature, not bearer token.
	api.POST("/payments/webhooks/:provider", s.WebhookRateLimit(), s.HandlePaymentWebhook)

	authed := api.Group("", s.JWTAuthRequired())

	// -------- Nodes --------
	authed.POST("/nodes", s.authorizeAction(authorization.ObjectNode, authorization.ActionNodeRegister), s.RegisterNode)
	authed.GET("/nodes/:id", s.authorizeAction(authorization.ObjectNode, authorization.ActionNodeView), s.GetNode)
	authed.GET("/nodes/:id/balance", s.authorizeAction(authorization.ObjectStatement, authorization.ActionStatementView), s.GetBalance)
	authed.GET("/nodes/:id/statements", s.authorizeAction(authorization.ObjectStatement, authorization.ActionStatementView), s.ListStatements)
	authed.GET("/nodes/:id/placement", s.authorizeAction(authorization.ObjectNode, authorization.ActionNodeView), s.PreviewPlacement)
	authed.POST("/nodes/:id/withdrawals", s.authorizeAction(authorization.ObjectStatement, authorization.ActionStatementWithdraw), s.Withdraw)

	// -------- Packages --------
	authed.GET("/packages", s.authorizeAction(authorization.ObjectPackage, authorization.ActionPackageView), s.ListPackages)

	// -------- Payments --------
	authed.POST("/payments", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentInitiate), s.InitiatePayment)
	authed.GET("/payments/:id", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPayment)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.JWTAuthRequired())

	admin.POST("/payments/:id/confirm", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentConfirm), s.ConfirmPayment)
	admin.POST("/payments/:id/fail", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentFail), s.FailPayment)
	admin.POST("/payments/:id/status", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentReconcile), s.UpdatePaymentStatus)
	admin.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

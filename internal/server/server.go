package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tenantcore/internal/config"
	identitydomain "github.com/smallbiznis/tenantcore/internal/identity/domain"
	onboardingdomain "github.com/smallbiznis/tenantcore/internal/onboarding/domain"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine          *gin.Engine
	cfg             config.Config
	onboardingSvc   onboardingdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	tenantRepo      tenantdomain.Repository
	identity        identitydomain.Gateway
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	OnboardingSvc   onboardingdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	TenantRepo      tenantdomain.Repository
	Identity        identitydomain.Gateway
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		onboardingSvc:   p.OnboardingSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		tenantRepo:      p.TenantRepo,
		identity:        p.Identity,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/tenants", s.ProvisionTenant)
	v1.GET("/tenants/:id", s.GetTenant)

	// -------- Subscriptions --------
	v1.GET("/tenants/:id/subscription", s.GetSubscription)
	v1.POST("/tenants/:id/subscription/change-plan", s.ChangePlan)
	v1.POST("/tenants/:id/subscription/downgrade", s.ImmediateDowngrade)
	v1.GET("/tenants/:id/trial-events", s.ListTrialEvents)
	v1.GET("/checkout/complete", s.CompleteCheckout)

	// -------- Payments --------
	v1.GET("/tenants/:id/payments", s.ListPayments)
	v1.POST("/tenants/:id/payments/:paymentId/refund", s.ProcessRefund)

	// Manual triggers for the jobs the scheduler runs periodically.
	internal := s.engine.Group("/internal")
	internal.POST("/downgrades/apply", s.ApplyScheduledDowngrades)
	internal.POST("/trials/expire", s.ExpireTrials)
}

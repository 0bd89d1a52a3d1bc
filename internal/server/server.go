package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	awarddomain "github.com/glowhub/portal/internal/award/domain"
	cartdomain "github.com/glowhub/portal/internal/cart/domain"
	"github.com/glowhub/portal/internal/catalog"
	checkoutdomain "github.com/glowhub/portal/internal/checkout/domain"
	"github.com/glowhub/portal/internal/config"
	"github.com/glowhub/portal/internal/customer"
	"github.com/glowhub/portal/internal/feedback"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	"github.com/glowhub/portal/internal/observability"
	obsmiddleware "github.com/glowhub/portal/internal/observability/logger"
	obsmetrics "github.com/glowhub/portal/internal/observability/metrics"
	obstracing "github.com/glowhub/portal/internal/observability/tracing"
	"github.com/glowhub/portal/internal/ratelimit"
	"github.com/glowhub/portal/internal/reconcile"
	"github.com/glowhub/portal/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine         *gin.Engine
	cfg            config.Config
	session        session.Session
	catalogSvc     catalog.Resolver
	cartSvc        cartdomain.Service
	checkoutSvc    checkoutdomain.Service
	awardSvc       awarddomain.Service
	ledgerSvc      ledgerdomain.Service
	customerSvc    customer.Service
	feedbackSvc    feedback.Service
	fulfillmentSvc fulfillmentdomain.Service
	reconciler     *reconcile.Reconciler
	obsMetrics     *obsmetrics.Metrics
	limiter        *ratelimit.MutationLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Session        session.Session
	CatalogSvc     catalog.Resolver
	CartSvc        cartdomain.Service
	CheckoutSvc    checkoutdomain.Service
	AwardSvc       awarddomain.Service
	LedgerSvc      ledgerdomain.Service
	CustomerSvc    customer.Service
	FeedbackSvc    feedback.Service
	FulfillmentSvc fulfillmentdomain.Service
	Reconciler     *reconcile.Reconciler
	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	Limiter        *ratelimit.MutationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		session:        p.Session,
		catalogSvc:     p.CatalogSvc,
		cartSvc:        p.CartSvc,
		checkoutSvc:    p.CheckoutSvc,
		awardSvc:       p.AwardSvc,
		ledgerSvc:      p.LedgerSvc,
		customerSvc:    p.CustomerSvc,
		feedbackSvc:    p.FeedbackSvc,
		fulfillmentSvc: p.FulfillmentSvc,
		reconciler:     p.Reconciler,
		obsMetrics:     p.ObsMetrics,
		limiter:        p.Limiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/services", s.ListServices)
	api.GET("/products", s.ListProducts)

	// -------- Customer --------
	api.POST("/customers", s.RegisterCustomer)
	api.GET("/customers/:id", s.GetCustomer)
	api.POST("/customers/:id/birthday-check", s.CheckBirthday)

	// -------- Wallet & ledger --------
	api.GET("/customers/:id/wallet", s.GetWallet)
	api.GET("/customers/:id/transactions", s.ListTransactions)
	api.POST("/customers/:id/redeem", s.MutationRateLimit("redeem"), s.RedeemPoints)

	// -------- Cart --------
	api.GET("/customers/:id/cart", s.ListCartItems)
	api.POST("/customers/:id/cart", s.MutationRateLimit("cart"), s.AddCartItem)
	api.PATCH("/customers/:id/cart/:itemId", s.MutationRateLimit("cart"), s.UpdateCartQuantity)
	api.DELETE("/customers/:id/cart/:itemId", s.MutationRateLimit("cart"), s.RemoveCartItem)

	// -------- Checkout --------
	api.POST("/customers/:id/checkout", s.MutationRateLimit("checkout"), s.BeginCheckout)
	api.POST("/customers/:id/checkout/shipping", s.MutationRateLimit("checkout"), s.SubmitShipping)

	// -------- Fulfillment --------
	api.GET("/customers/:id/bookings", s.ListBookings)
	api.GET("/customers/:id/orders", s.ListOrders)
	api.POST("/bookings/:id/complete", s.CompleteBooking)
	api.POST("/orders/:id/deliver", s.DeliverOrder)

	// -------- Feedback --------
	api.POST("/customers/:id/feedback", s.SubmitFeedback)
	api.GET("/customers/:id/feedback", s.ListFeedback)
	api.POST("/feedback/:id/approve", s.ApproveFeedback)
	api.POST("/feedback/:id/reject", s.RejectFeedback)

	// -------- Live updates --------
	api.GET("/updates/stream", s.StreamUpdates)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creditgate/internal/auth"
	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	entitlementdomain "github.com/smallbiznis/creditgate/internal/entitlement/domain"
	obsmiddleware "github.com/smallbiznis/creditgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditgate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditgate/internal/observability/tracing"
	"github.com/smallbiznis/creditgate/internal/pricing"
	"github.com/smallbiznis/creditgate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewLogSink),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	if !cfg.RateLimit.TrustForwardedFor {
		// client IPs feed rate-limit keys, so forwarded headers are ignored
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.DebugLogging(),
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

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(cfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	limiter        *ratelimit.Limiter
	entitlementSvc entitlementdomain.Service
	catalog        *pricing.Catalog
	verifier       auth.Verifier
	tokens         *auth.JWTVerifier
	wishSink       WishSink
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Limiter        *ratelimit.Limiter
	EntitlementSvc entitlementdomain.Service
	Catalog        *pricing.Catalog
	Verifier       auth.Verifier
	Tokens         *auth.JWTVerifier `optional:"true"`
	WishSink       WishSink
}

func NewServer(p ServerParams) *Server {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		genID:          p.GenID,
		clock:          clk,
		limiter:        p.Limiter,
		entitlementSvc: p.EntitlementSvc,
		catalog:        p.Catalog,
		verifier:       p.Verifier,
		tokens:         p.Tokens,
		wishSink:       p.WishSink,
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api", auth.Identify(s.verifier))

	api.GET("/pricing/catalog", s.RateLimit(config.RateLimitClassPublic, namespacePricingCatalog), s.GetPricingCatalog)
	api.POST("/wishes/quote", s.RateLimit(config.RateLimitClassPublic, namespaceWishQuote), s.QuoteWish)

	if !s.cfg.IsProduction() && s.tokens != nil {
		api.POST("/auth/token", s.RateLimit(config.RateLimitClassAuth, namespaceAuthToken), s.IssueToken)
	}
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", auth.Identify(s.verifier), s.IdentityRequired())

	api.POST("/premium", s.RateLimit(config.RateLimitClassPremium, namespacePremium), s.HandlePremium)
	api.POST("/wishes", s.RateLimit(config.RateLimitClassGeneral, namespaceWishCreate), s.CreateWish)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.RateLimit(config.RateLimitClassAuth, namespaceAdmin), s.AdminRequired())

	admin.GET("/users/:id", s.GetUserStatus)
	admin.GET("/users/:id/reconcile", s.ReconcileUser)
	admin.POST("/users/:id/upgrade", s.UpgradeUser)
	admin.POST("/users/:id/downgrade", s.DowngradeUser)
	admin.POST("/users/:id/credits", s.GrantCredits)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// IdentityRequired rejects requests without a verified identity before
// anything else runs.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return auth.RequireIdentity(func(c *gin.Context, err error) {
		AbortWithError(c, ErrUnauthorized)
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hk-gateway/internal/events"
	"hk-gateway/internal/monitor"
	"hk-gateway/internal/order"
	"hk-gateway/internal/scenario"
)

const scenarioPath = "/order/scenario-camp2"

// Server wires the order façade and the scenario runner to HTTP.
type Server struct {
	Router   *gin.Engine
	Bus      *events.Bus
	Orders   *order.Service
	Scenario *scenario.Runner
	Metrics  *monitor.SystemMetrics
	Meta     SystemMeta

	// runCtx outlives individual requests; scenario runs are bound to it.
	runCtx  context.Context
	origins []string
	log     *zap.Logger
}

// SystemMeta describes runtime status exposed on /health.
type SystemMeta struct {
	Version string
	BaseURL string
	Symbol  string
}

// Options tunes the middleware stack.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	RateLimit      rate.Limit // per client IP; zero uses 20 req/s
	RateBurst      int
}

// NewServer builds the router. runCtx bounds the lifetime of scenario runs.
func NewServer(runCtx context.Context, orders *order.Service, runner *scenario.Runner, bus *events.Bus, metrics *monitor.SystemMetrics, log *zap.Logger, meta SystemMeta, opts Options) *Server {
	if runCtx == nil {
		runCtx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(Recovery(log))
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log, metrics))
	r.Use(RateLimitMiddleware(newIPLimiters(opts.RateLimit, opts.RateBurst), log))
	r.Use(CORSMiddleware(opts.AllowedOrigins))
	if opts.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(opts.RequestTimeout, log, scenarioPath))
	}

	s := &Server{
		Router:   r,
		Bus:      bus,
		Orders:   orders,
		Scenario: runner,
		Metrics:  metrics,
		Meta:     meta,
		runCtx:   runCtx,
		origins:  opts.AllowedOrigins,
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.GET("/api/metrics", s.getMetrics)

	o := s.Router.Group("/order")
	{
		o.POST("/create", s.createOrder)
		o.GET("/open-orders", s.openOrders)
		o.GET("/balance", s.balance)
		o.POST("/buy-market", s.buyMarket)
		o.POST("/buy-limit", s.buyLimit)
		o.POST("/sell-market", s.sellMarket)
		o.POST("/sell-limit", s.sellLimit)
		o.DELETE("/cancel-orders-all", s.cancelOrdersAll)
		o.GET("/get-orderbook", s.getOrderbook)

		o.POST("/scenario-camp2", s.runScenario)
		o.GET("/scenario-camp2/status", s.scenarioStatus)
		o.POST("/scenario-camp2/cancel", s.cancelScenario)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.Meta.Version,
		"venue":   s.Meta.BaseURL,
		"symbol":  s.Meta.Symbol,
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "UNAVAILABLE", "metrics disabled")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) runCtxDone() <-chan struct{} {
	return s.runCtx.Done()
}

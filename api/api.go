package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/api/rest"
	"github.com/zlnvch/easel/api/ws"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/service"
)

type Options struct {
	AllowedOrigin string
	RateLimit     rest.RateLimiterConfig
	// Gatherer backs /metrics; the route is not mounted when nil.
	Gatherer prometheus.Gatherer
}

type EaselAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	rateLimiter *rest.RateLimiter
	service     *service.Service
	options     Options
	hubDone     chan struct{}
}

// NewEaselAPI starts the websocket hub on shutdownCtx and builds the
// handlers around svc.
func NewEaselAPI(svc *service.Service, options Options, shutdownCtx context.Context) *EaselAPI {
	wsHub := ws.NewHub(svc.Cache, svc.Metrics)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		wsHub.Run(shutdownCtx)
	}()

	return &EaselAPI{
		restHandler: rest.NewHandler(svc),
		wsHandler:   ws.NewHandler(svc, wsHub, options.AllowedOrigin, shutdownCtx),
		rateLimiter: rest.NewRateLimiter(options.RateLimit),
		service:     svc,
		options:     options,
		hubDone:     hubDone,
	}
}

func (easelAPI *EaselAPI) RegisterRoutes(router *gin.Engine) {
	router.Use(
		rest.Recovery(),
		rest.RequestLogger(easelAPI.service.Metrics),
		rest.CORS(easelAPI.options.AllowedOrigin),
	)
	router.NoRoute(func(c *gin.Context) {
		response.NotFoundError(c, "not found")
	})

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if easelAPI.options.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(easelAPI.options.Gatherer)))
	}

	// The websocket carries its token in Sec-WebSocket-Protocol.
	router.GET("/ws", easelAPI.wsHandler.ServeWS)

	easelAPI.restHandler.RegisterPublic(&router.RouterGroup)

	protected := router.Group("", rest.Authenticate(easelAPI.service), easelAPI.rateLimiter.General())
	easelAPI.restHandler.RegisterProtected(protected, easelAPI.rateLimiter.Uploads())
}

// Close stops background work owned by the API and waits for the hub,
// which stops with the shutdown context.
func (easelAPI *EaselAPI) Close() {
	easelAPI.rateLimiter.Stop()
	<-easelAPI.hubDone
}

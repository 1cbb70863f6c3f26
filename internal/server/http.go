package server

import (
	"strconv"

	"FuseGate/internal/biz"
	"FuseGate/internal/conf"
	"FuseGate/internal/server/middleware"
	"FuseGate/internal/service"
	pkglog "FuseGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	ops *service.OpsService,
	limiter *biz.RateLimiterUseCase,
	monitor *biz.AlertMonitor,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
			middleware.RateLimit(limiter, monitor, logHelper),
			middleware.Metrics(monitor),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerOpsRoutes(srv, ops)

	return srv
}

// registerOpsRoutes wires the operational API routes.
func registerOpsRoutes(srv *http.Server, ops *service.OpsService) {
	root := srv.Route("/")

	root.GET("/health", func(ctx http.Context) error {
		return ctx.Result(200, ops.Health(ctx))
	})

	r := srv.Route("/v1/ops")

	r.GET("/status", func(ctx http.Context) error {
		return ctx.Result(200, ops.Status(ctx))
	})

	r.GET("/metrics", func(ctx http.Context) error {
		return ctx.Result(200, ops.Metrics(ctx))
	})

	r.GET("/breakers", func(ctx http.Context) error {
		return ctx.Result(200, ops.ListBreakers(ctx))
	})

	r.GET("/breakers/{name}", func(ctx http.Context) error {
		m, err := ops.GetBreaker(ctx, ctx.Vars().Get("name"))
		if err != nil {
			return err
		}
		return ctx.Result(200, m)
	})

	r.POST("/breakers/{name}/{action}", func(ctx http.Context) error {
		m, err := ops.ForceBreaker(ctx, ctx.Vars().Get("name"), ctx.Vars().Get("action"))
		if err != nil {
			return err
		}
		return ctx.Result(200, m)
	})

	r.POST("/breakers:reset", func(ctx http.Context) error {
		return ctx.Result(200, ops.ResetAllBreakers(ctx))
	})

	r.GET("/pool", func(ctx http.Context) error {
		return ctx.Result(200, ops.PoolStatus(ctx))
	})

	r.POST("/pool:reset", func(ctx http.Context) error {
		return ctx.Result(200, ops.ResetPool(ctx))
	})

	r.GET("/alerts", func(ctx http.Context) error {
		unackedOnly := ctx.Query().Get("unacked") == "true"
		return ctx.Result(200, ops.ListAlerts(ctx, unackedOnly))
	})

	r.GET("/alerts/history", func(ctx http.Context) error {
		limit, _ := strconv.Atoi(ctx.Query().Get("limit"))
		alerts, err := ops.AlertHistory(ctx, limit)
		if err != nil {
			return err
		}
		return ctx.Result(200, alerts)
	})

	r.POST("/alerts:clear", func(ctx http.Context) error {
		ops.ClearAlerts(ctx)
		return ctx.Result(200, map[string]string{"status": "cleared"})
	})

	r.POST("/alerts/{id}/ack", func(ctx http.Context) error {
		var body struct {
			AcknowledgedBy string `json:"acknowledged_by"`
		}
		if err := ctx.Bind(&body); err != nil {
			return err
		}
		if err := ops.AcknowledgeAlert(ctx, ctx.Vars().Get("id"), body.AcknowledgedBy); err != nil {
			return err
		}
		return ctx.Result(200, map[string]string{"status": "acknowledged"})
	})
}

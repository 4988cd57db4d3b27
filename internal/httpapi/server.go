// Package httpapi exposes the match service over HTTP with Fiber.
package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/internal/metrics"
	"github.com/park285/rpsmatch/internal/msgcat"
	"github.com/park285/rpsmatch/internal/obslog"
)

const headerRequestID = "X-Request-ID"

type Deps struct {
	Service *match.Service
	Catalog *msgcat.Catalog
	// Metrics is optional; /metrics is mounted only when set.
	Metrics        *metrics.Recorder
	Backend        string
	AllowedOrigins string
}

type api struct {
	svc     *match.Service
	catalog *msgcat.Catalog
	metrics *metrics.Recorder
	backend string
}

// New builds the Fiber app with middleware and all routes registered.
func New(d Deps) *fiber.App {
	a := &api{svc: d.Service, catalog: d.Catalog, metrics: d.Metrics, backend: d.Backend}

	app := fiber.New(fiber.Config{
		AppName:               "rps-server",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          a.handleError,
		UnescapePath:          true,
	})

	origins := strings.TrimSpace(d.AllowedOrigins)
	if origins == "" {
		origins = "*"
	}
	app.Use(requestID())
	app.Use(a.accessLog)
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, " + headerRequestID,
		ExposeHeaders: headerRequestID,
	}))

	app.Get("/healthz", a.health)
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}
	a.routes(app.Group("/api"))
	return app
}

func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Locals("request_id", id)
		return c.Next()
	}
}

func requestIDOf(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

// accessLog writes one http_request entry per request. Errors are rendered
// here so the logged status is the one sent.
func (a *api) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	status := c.Response().StatusCode()
	a.metrics.HTTPRequest(utils.CopyString(c.Method()), status)
	obslog.L().Info("http_request",
		zap.String("request_id", requestIDOf(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}

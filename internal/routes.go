package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "leadpulse/api/v1"
	"leadpulse/internal/config"
	"leadpulse/internal/http"
	"leadpulse/internal/http/middleware"
)

// publicCORSConfig is shared by every tracking endpoint; the landing page and
// the collector live on different origins.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,PUT,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	srv.App().Use(middleware.Metrics())

	// Rate limiting only runs in production; it would get in the way of local testing.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 req/min per IP covers a visitor's heartbeats and events with room to spare.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// The tracking client may run outside a browser, so Sec-Fetch-Site is not required.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware:   []fiber.Handler{middleware.AdminAPIKeyAuth(db, logger, cfg.AdminAPIKey)},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	infraConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === INFRASTRUCTURE ===
	srv.Get("/_health", http.HealthIndexAction, infraConfig)
	srv.Head("/_health", http.HealthIndexAction, infraConfig)
	srv.App().Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// === PUBLIC TRACKING API ===
	srv.Post("/api/analytics/session", v1.StartSessionHandler, publicAPIConfig)
	srv.Options("/api/analytics/session", preflight, publicAPIConfig)

	// Heartbeats are sent with PUT, which the cartridge router does not expose.
	// POST is accepted too for clients that can only send simple requests.
	srv.App().Put("/api/analytics/session/update",
		cors.New(*publicCORSConfig),
		publicRateLimiter,
		v1.Adapt(v1.UpdateSessionHandler, srv.GetDBManager(), logger))
	srv.Post("/api/analytics/session/update", v1.UpdateSessionHandler, publicAPIConfig)
	srv.Options("/api/analytics/session/update", preflight, publicAPIConfig)

	srv.Post("/api/analytics/session/end", v1.EndSessionHandler, publicAPIConfig)
	srv.Options("/api/analytics/session/end", preflight, publicAPIConfig)

	srv.Post("/api/analytics/event", v1.RecordEventHandler, publicAPIConfig)
	srv.Options("/api/analytics/event", preflight, publicAPIConfig)

	srv.Post("/api/analytics/conversion", v1.RecordConversionHandler, publicAPIConfig)
	srv.Options("/api/analytics/conversion", preflight, publicAPIConfig)

	srv.Post("/api/leads", v1.CaptureLeadHandler, publicAPIConfig)
	srv.Options("/api/leads", preflight, publicAPIConfig)

	// === ADMIN API ===
	srv.Get("/api/analytics/sessions", http.SessionsReportAction, adminAPIConfig)
	srv.Get("/api/analytics/sessions/:id", http.SessionShowAction, adminAPIConfig)
	srv.Get("/api/analytics/events", http.EventsReportAction, adminAPIConfig)
	srv.Get("/api/analytics/conversions", http.ConversionsReportAction, adminAPIConfig)
	srv.Get("/api/analytics/daily", http.DailyReportAction, adminAPIConfig)

	// resend-failed must be registered before the :id route it would otherwise match.
	srv.Post("/api/analytics/webhook/resend-failed", http.WebhookResendFailedAction, adminAPIConfig)
	srv.Post("/api/analytics/webhook/:id", http.WebhookSendAction, adminAPIConfig)

	srv.Post("/api/analytics/check-duplicates", http.CheckDuplicatesAction, adminAPIConfig)
	srv.Post("/api/analytics/reconcile", http.ReconcileAction, adminAPIConfig)

	srv.Get("/api/analytics/leads/export", http.LeadsExportAction, adminAPIConfig)
	srv.Get("/api/analytics/leads", http.LeadsIndexAction, adminAPIConfig)
	srv.Delete("/api/analytics/leads/:id", http.LeadDeleteAction, adminAPIConfig)

	srv.Get("/api/settings/webhook", http.WebhookSettingsAction, adminAPIConfig)
	srv.App().Put("/api/settings/webhook",
		middleware.AdminAPIKeyAuth(db, logger, cfg.AdminAPIKey),
		v1.Adapt(http.WebhookSettingsUpdateAction, srv.GetDBManager(), logger))
	srv.Post("/api/settings/webhook", http.WebhookSettingsUpdateAction, adminAPIConfig)
}

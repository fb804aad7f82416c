package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"leadpulse/internal/leads"
)

// HealthStatus is the body of the /_health response.
type HealthStatus struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	DBStatus        string    `json:"db_status"`
	PendingWebhooks int64     `json:"pending_webhooks"`
	FailedWebhooks  int64     `json:"failed_webhooks"`
}

// HealthIndexAction reports database reachability and the webhook backlog.
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  "ok",
	}

	db := ctx.DBManager.GetConnection()
	if db == nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else if sqlDB, err := db.DB(); err != nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
	} else if err := sqlDB.Ping(); err != nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
	}

	if health.DBStatus == "ok" {
		for status, dst := range map[leads.WebhookStatus]*int64{
			leads.WebhookPending: &health.PendingWebhooks,
			leads.WebhookError:   &health.FailedWebhooks,
		} {
			if err := db.Model(&leads.Lead{}).Where("webhook_status = ?", status).Count(dst).Error; err != nil {
				ctx.Logger.Warn("Failed to count webhook backlog", slog.String("status", string(status)), slog.Any("error", err))
			}
		}
	} else {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}

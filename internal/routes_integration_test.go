package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
)

func TestPublicTrackingRoutesRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	publicRoutes := []string{
		"/api/analytics/session",
		"/api/analytics/session/end",
		"/api/analytics/event",
		"/api/analytics/conversion",
		"/api/leads",
	}

	for _, path := range publicRoutes {
		var found *fiber.Route
		for idx := range routes {
			if routes[idx].Method == fiber.MethodPost && routes[idx].Path == path {
				found = &routes[idx]
				break
			}
		}
		require.NotNilf(t, found, "expected POST %s to be registered", path)

		// The limiter only bites in production, but the conditional wrapper
		// defined in MountAppRoutes is always on the chain.
		hasRateLimiter := false
		var handlerNames []string
		for _, handler := range found.Handlers {
			name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
			handlerNames = append(handlerNames, name)
			if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
				hasRateLimiter = true
				break
			}
		}
		require.Truef(t, hasRateLimiter, "expected rate limiter on POST %s, handlers: %v", path, handlerNames)
	}
}

func TestRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})

	registered := map[string]bool{}
	for _, route := range srv.App.GetRoutes(true) {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /_health",
		"HEAD /_health",
		"GET /metrics",
		"PUT /api/analytics/session/update",
		"OPTIONS /api/analytics/session/update",
		"GET /api/analytics/sessions",
		"GET /api/analytics/events",
		"GET /api/analytics/conversions",
		"GET /api/analytics/daily",
		"POST /api/analytics/webhook/resend-failed",
		"POST /api/analytics/webhook/:id",
		"POST /api/analytics/check-duplicates",
		"POST /api/analytics/reconcile",
		"GET /api/analytics/leads",
		"GET /api/analytics/leads/export",
		"DELETE /api/analytics/leads/:id",
		"GET /api/settings/webhook",
		"PUT /api/settings/webhook",
	}
	for _, route := range expected {
		require.Truef(t, registered[route], "expected %s to be registered", route)
	}
}

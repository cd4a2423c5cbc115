package bootstrap

import (
	"net"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/dbgateway"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const healthServerShutdownTimeout = 5 * time.Second

// HealthServer exposes liveness, readiness and the gateway client's health
// snapshot over HTTP.
type HealthServer struct {
	app    *fiber.App
	port   string
	db     *dbgateway.Client
	logger *zap.SugaredLogger
}

// NewHealthServer creates a HealthServer bound to the given port.
func NewHealthServer(port string, db *dbgateway.Client, logger *zap.SugaredLogger) *HealthServer {
	hs := &HealthServer{
		port:   port,
		db:     db,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		IdleTimeout:           30 * time.Second,
	})

	app.Get("/health", hs.handleHealth)
	app.Get("/ready", hs.handleReady)
	app.Get("/stats", hs.handleStats)

	hs.app = app

	return hs
}

// Start begins listening in a background goroutine.
func (hs *HealthServer) Start() {
	go func() {
		addr := net.JoinHostPort("", hs.port)
		hs.logger.Infof("Health server listening on %s", addr)

		if err := hs.app.Listen(addr); err != nil {
			hs.logger.Errorf("Health server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the health server.
func (hs *HealthServer) Shutdown() {
	if err := hs.app.ShutdownWithTimeout(healthServerShutdownTimeout); err != nil {
		hs.logger.Errorf("Health server shutdown error: %v", err)
	}
}

// handleHealth is the liveness probe. 200 means the process is alive; no
// dependency checks.
func (hs *HealthServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// handleReady reports readiness: both identities established and no open
// circuits.
func (hs *HealthServer) handleReady(c *fiber.Ctx) error {
	snapshot := hs.db.Health()

	if !snapshot.RestrictedAvailable || !snapshot.ElevatedAvailable {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"reason": "gateway identity not established",
		})
	}

	if snapshot.OpenCircuits > 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":       "degraded",
			"openCircuits": snapshot.OpenCircuits,
		})
	}

	return c.JSON(fiber.Map{"status": "ready"})
}

// handleStats returns the full health snapshot.
func (hs *HealthServer) handleStats(c *fiber.Ctx) error {
	return c.JSON(hs.db.Health())
}

package system

import (
	"context"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/database"
	"parish-media/internal/storage"

	"github.com/gofiber/fiber/v2"
)

type HealthApi struct {
	config  *config.Config
	sqldb   *database.SQLDB
	mongodb *database.MongodbDB
	layout  *storage.Layout
}

func NewHealthApi(cfg *config.Config, sqldb *database.SQLDB, mongodb *database.MongodbDB, layout *storage.Layout) *HealthApi {
	return &HealthApi{config: cfg, sqldb: sqldb, mongodb: mongodb, layout: layout}
}

// Setup registers health check route
func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Reports catalog connectivity and storage root
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (h *HealthApi) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	catalog := "ok"
	if err := h.pingCatalog(ctx); err != nil {
		status = fiber.StatusServiceUnavailable
		catalog = err.Error()
	}

	return c.Status(status).JSON(fiber.Map{
		"status":         healthStatus(status),
		"catalog_driver": h.config.CatalogDriver,
		"catalog":        catalog,
		"storage_root":   h.layout.Root,
	})
}

func (h *HealthApi) pingCatalog(ctx context.Context) error {
	if h.sqldb != nil && h.sqldb.DB != nil {
		return h.sqldb.DB.PingContext(ctx)
	}
	if h.mongodb != nil && h.mongodb.DB != nil {
		return h.mongodb.DB.Client().Ping(ctx, nil)
	}
	return nil
}

func healthStatus(code int) string {
	if code == fiber.StatusOK {
		return "ok"
	}
	return "degraded"
}

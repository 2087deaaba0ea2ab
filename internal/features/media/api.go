package media

import (
	"parish-media/internal/config"
	"parish-media/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type MediaApi struct {
	controller *MediaController
	config     *config.Config
}

func NewMediaApi(controller *MediaController, config *config.Config) *MediaApi {
	return &MediaApi{
		controller: controller,
		config:     config,
	}
}

func (h *MediaApi) Setup(app *fiber.App) {
	required := middleware.AuthMiddleware(h.config.SkipAuth)
	optional := middleware.OptionalAuthMiddleware(h.config.SkipAuth)

	uploadAuth := required
	if h.config.AllowAnonymousUpload {
		uploadAuth = optional
	}

	media := app.Group("/api/media")
	media.Post("/", uploadAuth, h.controller.Upload)
	media.Get("/", optional, h.controller.List)
	media.Get("/export", required, middleware.RequireRole(h.config.ElevatedRoles...), h.controller.Export)
	media.Get("/events", RequireUpgrade, websocket.New(h.controller.Events))
	media.Get("/:id", optional, h.controller.Get)
	media.Patch("/:id", required, h.controller.Update)
	media.Delete("/:id", required, h.controller.Delete)

	app.Get(h.config.UploadURLPrefix+"/:dir/:file", optional, h.controller.ServeFile)
}

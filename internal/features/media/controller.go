package media

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/mediatype"
	"parish-media/internal/middleware"
	"parish-media/pkg/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type MediaController struct {
	Service MediaService
	Hub     *EventHub
	Config  *config.Config
	Log     *zap.Logger
}

func NewMediaController(service MediaService, hub *EventHub, cfg *config.Config, log *zap.Logger) *MediaController {
	return &MediaController{
		Service: service,
		Hub:     hub,
		Config:  cfg,
		Log:     log.Named("media.http"),
	}
}

// Upload godoc
// @Summary      Upload media
// @Description  Upload one or more files. Each file is classified, stored, processed and cataloged independently.
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        files        formData  file    true   "Files to upload (repeatable)"
// @Param        visibility   formData  string  false  "public or private"
// @Param        alt_text     formData  string  false  "Alt text applied to every file"
// @Param        caption      formData  string  false  "Caption applied to every file"
// @Param        description  formData  string  false  "Description applied to every file"
// @Success      201  {object}  BatchResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}
// @Failure      422  {object}  BatchResult
// @Security     BearerAuth
// @Router       /api/media [post]
func (ctrl *MediaController) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid multipart form"})
	}

	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)

	uploads := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, Upload{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	opts := UploadOptions{
		Visibility:  Visibility(c.FormValue("visibility")),
		AltText:     c.FormValue("alt_text"),
		Caption:     c.FormValue("caption"),
		Description: c.FormValue("description"),
	}

	result, err := ctrl.Service.UploadBatch(c.UserContext(), ctrl.actor(c), uploads, opts)
	if err != nil {
		return ctrl.writeError(c, err)
	}

	status := fiber.StatusCreated
	if len(result.Assets) == 0 {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(result)
}

// List godoc
// @Summary      List media
// @Description  Paginated catalog listing. Anonymous callers see public assets, authenticated callers also see their own.
// @Tags         media
// @Produce      json
// @Param        category     query  string  false  "image, video, audio or document"
// @Param        uploaded_by  query  string  false  "Uploader id"
// @Param        visibility   query  string  false  "public or private"
// @Param        featured     query  bool    false  "Featured flag"
// @Param        q            query  string  false  "Search in filename, caption and description"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        limit        query  int     false  "Page size (default 20, max 100)"
// @Success      200  {object}  ListResult
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/media [get]
func (ctrl *MediaController) List(c *fiber.Ctx) error {
	var q ListQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query parameters"})
	}

	result, err := ctrl.Service.List(c.UserContext(), ctrl.actor(c), q)
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.JSON(result)
}

// Get godoc
// @Summary      Get media asset
// @Tags         media
// @Produce      json
// @Param        id   path  string  true  "Asset ID"
// @Success      200  {object}  AssetResponse
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/media/{id} [get]
func (ctrl *MediaController) Get(c *fiber.Ctx) error {
	asset, err := ctrl.Service.Get(c.UserContext(), ctrl.actor(c), c.Params("id"))
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.JSON(asset)
}

// Update godoc
// @Summary      Update media metadata
// @Description  Only alt_text, caption, description, visibility and is_featured may be changed.
// @Tags         media
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "Asset ID"
// @Param        body  body  map[string]interface{}  true  "Fields to update"
// @Success      200  {object}  AssetResponse
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Security     BearerAuth
// @Router       /api/media/{id} [patch]
func (ctrl *MediaController) Update(c *fiber.Ctx) error {
	var raw map[string]any
	if err := c.BodyParser(&raw); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	asset, err := ctrl.Service.UpdateMetadata(c.UserContext(), ctrl.actor(c), c.Params("id"), raw)
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.JSON(asset)
}

// Delete godoc
// @Summary      Delete media asset
// @Description  Removes the stored files and the catalog record.
// @Tags         media
// @Param        id   path  string  true  "Asset ID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}
// @Security     BearerAuth
// @Router       /api/media/{id} [delete]
func (ctrl *MediaController) Delete(c *fiber.Ctx) error {
	if err := ctrl.Service.Delete(c.UserContext(), ctrl.actor(c), c.Params("id")); err != nil {
		return ctrl.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Export godoc
// @Summary      Export media inventory
// @Description  Spreadsheet of every asset matching the listing filters.
// @Tags         media
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        category    query  string  false  "image, video, audio or document"
// @Param        visibility  query  string  false  "public or private"
// @Param        q           query  string  false  "Search text"
// @Success      200  {file}  file
// @Failure      403  {object}  map[string]interface{}
// @Security     BearerAuth
// @Router       /api/media/export [get]
func (ctrl *MediaController) Export(c *fiber.Ctx) error {
	var q ListQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query parameters"})
	}

	buf := new(bytes.Buffer)
	if err := ctrl.Service.Export(c.UserContext(), ctrl.actor(c), q, buf); err != nil {
		return ctrl.writeError(c, err)
	}

	filename := "media-inventory-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(buf.Bytes())
}

// ServeFile godoc
// @Summary      Fetch a stored file
// @Description  Originals, optimized copies and thumbnails. Private assets require the owner or an elevated role.
// @Tags         media
// @Param        dir   path  string  true  "images, videos, audio, documents or thumbnails"
// @Param        file  path  string  true  "Stored filename"
// @Success      200  {file}  file
// @Failure      404  {object}  map[string]interface{}
// @Router       /uploads/{dir}/{file} [get]
func (ctrl *MediaController) ServeFile(c *fiber.Ctx) error {
	path, err := ctrl.Service.ResolveFile(c.UserContext(), ctrl.actor(c), c.Params("dir"), c.Params("file"))
	if err != nil {
		return ctrl.writeError(c, err)
	}
	return c.SendFile(path)
}

// Events godoc
// @Summary      Live media events
// @Description  WebSocket stream of asset.created, asset.updated and asset.deleted events for public assets.
// @Tags         media
// @Router       /api/media/events [get]
func (ctrl *MediaController) Events(conn *websocket.Conn) {
	events, cancel := ctrl.Hub.Subscribe()
	defer cancel()

	// The read loop only exists to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for evt := range events {
		if err := conn.WriteJSON(evt); err != nil {
			ctrl.Log.Debug("event stream closed", zap.Error(err))
			return
		}
	}
}

// RequireUpgrade rejects plain HTTP requests on the events route.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (ctrl *MediaController) actor(c *fiber.Ctx) Actor {
	claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if !ok || claims == nil {
		return Actor{}
	}
	return Actor{
		UserID:   claims.UserID,
		Elevated: middleware.HasAnyRole(claims.Roles, ctrl.Config.ElevatedRoles),
	}
}

func (ctrl *MediaController) writeError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		ctrl.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFoundOrForbidden):
		return fiber.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrForbiddenField),
		errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrNoFiles),
		errors.Is(err, ErrTooManyFiles):
		return fiber.StatusBadRequest
	case errors.Is(err, mediatype.ErrUnsupportedMediaType):
		return fiber.StatusUnsupportedMediaType
	default:
		return fiber.StatusInternalServerError
	}
}

package handlers

import (
	"errors"
	"io"

	"doc-verifier/internal/dto"
	"doc-verifier/internal/models"
	"doc-verifier/internal/service"
	"doc-verifier/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WidgetHandler struct {
	widgetService *service.WidgetService
	logger        *zap.Logger
}

func NewWidgetHandler(widgetService *service.WidgetService, logger *zap.Logger) *WidgetHandler {
	return &WidgetHandler{
		widgetService: widgetService,
		logger:        logger,
	}
}

// CreateWidget godoc
// @Summary Create a widget instance
// @Description Start a new document verification widget in the idle state
// @Tags widgets
// @Produce json
// @Security Bearer
// @Success 201 {object} dto.WidgetResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/widgets [post]
func (h *WidgetHandler) CreateWidget(c *fiber.Ctx) error {
	session, err := h.widgetService.Create(c.UserContext())
	if err != nil {
		h.logger.Error("Failed to create widget", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create widget",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewWidgetResponse(session))
}

// GetWidget godoc
// @Summary Get widget state
// @Description Current snapshot of a widget: state, progress, fields and display values
// @Tags widgets
// @Produce json
// @Param id path string true "Widget ID"
// @Security Bearer
// @Success 200 {object} dto.WidgetResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/widgets/{id} [get]
func (h *WidgetHandler) GetWidget(c *fiber.Ctx) error {
	widgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid widget ID",
		})
	}

	session, err := h.widgetService.Snapshot(c.UserContext(), widgetID)
	if err != nil {
		return h.writeError(c, err, "Failed to get widget")
	}

	return c.JSON(dto.NewWidgetResponse(session))
}

// UploadDocument godoc
// @Summary Upload a document
// @Description Select a file for the widget and start extraction. Progress is reported through GET /api/v1/widgets/{id}
// @Tags widgets
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Widget ID"
// @Param file formData file true "Document file (pdf, jpg, png)"
// @Security Bearer
// @Success 202 {object} dto.WidgetResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/widgets/{id}/upload [post]
func (h *WidgetHandler) UploadDocument(c *fiber.Ctx) error {
	widgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid widget ID",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	session, err := h.widgetService.Upload(widgetID, file.Filename, content)
	if err != nil {
		return h.writeError(c, err, "Failed to upload document")
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.NewWidgetResponse(session))
}

// RetryWidget godoc
// @Summary Retry
// @Description Clear the current attempt and return to idle. Allowed from review, verified, error and unprocessable
// @Tags widgets
// @Produce json
// @Param id path string true "Widget ID"
// @Security Bearer
// @Success 200 {object} dto.WidgetResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/widgets/{id}/retry [post]
func (h *WidgetHandler) RetryWidget(c *fiber.Ctx) error {
	widgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid widget ID",
		})
	}

	session, err := h.widgetService.Retry(widgetID)
	if err != nil {
		return h.writeError(c, err, "Failed to retry")
	}

	return c.JSON(dto.NewWidgetResponse(session))
}

// SubmitWidget godoc
// @Summary Submit the reviewed document
// @Description Commit the extracted document. Requires the review state and a document id
// @Tags widgets
// @Produce json
// @Param id path string true "Widget ID"
// @Security Bearer
// @Success 202 {object} dto.WidgetResponse
// @Failure 404 {object} map[string]string
// @Failure 412 {object} map[string]string
// @Router /api/v1/widgets/{id}/submit [post]
func (h *WidgetHandler) SubmitWidget(c *fiber.Ctx) error {
	widgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid widget ID",
		})
	}

	session, err := h.widgetService.Submit(widgetID)
	if err != nil {
		return h.writeError(c, err, "Failed to submit document")
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.NewWidgetResponse(session))
}

// ResetWidget godoc
// @Summary Reset
// @Description Return the widget to idle from any state, discarding in-flight work
// @Tags widgets
// @Produce json
// @Param id path string true "Widget ID"
// @Security Bearer
// @Success 200 {object} dto.WidgetResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/widgets/{id}/reset [post]
func (h *WidgetHandler) ResetWidget(c *fiber.Ctx) error {
	widgetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid widget ID",
		})
	}

	session, err := h.widgetService.Reset(widgetID)
	if err != nil {
		return h.writeError(c, err, "Failed to reset widget")
	}

	return c.JSON(dto.NewWidgetResponse(session))
}

func (h *WidgetHandler) writeError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrWidgetNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Widget not found",
		})
	case errors.Is(err, service.ErrInvalidFile):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrBusy), errors.Is(err, service.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrPrecondition):
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.logger.Error(fallback, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fallback,
	})
}

type ConfigHandler struct {
	response *dto.ConfigResponse
}

func NewConfigHandler(cfg *config.WidgetConfig) *ConfigHandler {
	return &ConfigHandler{
		response: &dto.ConfigResponse{
			AcceptedFileTypes: cfg.AcceptedFileTypes,
			MaxFileSizeMB:     cfg.MaxFileSizeMB,
			DocumentType:      cfg.DocumentType,
			PeriodRange:       cfg.PeriodRange,
			Fields:            models.FieldNames,
		},
	}
}

// GetConfig godoc
// @Summary Widget configuration
// @Description Accepted file types, size limit and labels used by the widget
// @Tags widgets
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.ConfigResponse
// @Router /api/v1/config [get]
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(h.response)
}

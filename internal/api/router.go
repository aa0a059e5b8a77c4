package api

import (
	"time"

	"doc-verifier/docs"
	"doc-verifier/internal/api/handlers"
	"doc-verifier/pkg/auth"
	"doc-verifier/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

type RouterOptions struct {
	// BodyLimit caps request bodies in bytes; zero keeps fiber's default.
	BodyLimit      int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestLogging bool
}

func SetupRouter(
	widgetHandler *handlers.WidgetHandler,
	configHandler *handlers.ConfigHandler,
	verifier *auth.TokenVerifier,
	opts RouterOptions,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    opts.BodyLimit,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	if opts.RequestLogging {
		app.Use(logger.New())
	}

	// Swagger; importing docs registers the API document
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if verifier == nil {
		appLogger.Warn("Widget token secret is not set, API is unauthenticated")
	}
	api := app.Group("/api/v1", middleware.WidgetTokenMiddleware(verifier, appLogger))

	api.Get("/config", configHandler.GetConfig)

	widgets := api.Group("/widgets")
	widgets.Post("", widgetHandler.CreateWidget)
	widgets.Get("/:id", widgetHandler.GetWidget)
	widgets.Post("/:id/upload", widgetHandler.UploadDocument)
	widgets.Post("/:id/retry", widgetHandler.RetryWidget)
	widgets.Post("/:id/submit", widgetHandler.SubmitWidget)
	widgets.Post("/:id/reset", widgetHandler.ResetWidget)

	return app
}

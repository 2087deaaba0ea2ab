package main

import (
	"context"
	"fmt"
	"time"

	common_api "parish-media/internal/common/api"
	"parish-media/internal/config"
	"parish-media/internal/database"
	"parish-media/internal/features/media"
	"parish-media/internal/features/system"
	"parish-media/internal/logger"
	"parish-media/internal/middleware"
	"parish-media/internal/processing"
	"parish-media/internal/storage"
	"parish-media/pkg/utils"

	_ "parish-media/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for form fields and part headers on top of the file payloads.
const multipartOverhead = 1 << 20

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.MaxFileSize)*cfg.MaxUploadFiles + multipartOverhead,
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

	app.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, log *zap.Logger) {
	for _, route := range routes {
		log.Debug("registering routes", zap.String("api", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
	log.Info("routes registered", zap.Int("apis", len(routes)))
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				log.Info("listening", zap.String("addr", port))
				if err := app.Listen(port); err != nil {
					log.Fatal("server failed to start", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeStorage creates the category directories and the catalog schema before
// the first request is accepted.
func InitializeStorage(lc fx.Lifecycle, layout *storage.Layout, repo media.MediaRepository) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := layout.EnsureLayout(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return repo.EnsureSchema(ctx)
		},
	})
}

func StartReconciler(lc fx.Lifecycle, scheduler *media.ReconcileScheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
}

func NewLayout(cfg *config.Config) (*storage.Layout, error) {
	return storage.NewLayout(cfg.UploadDir)
}

func NewProber(cfg *config.Config, log *zap.Logger) processing.Prober {
	return processing.NewFFProber(cfg.FFProbePath, cfg.FFmpegPath, log)
}

// @title           Parish Media API
// @version         1.0
// @description     Upload, processing and catalog service for parish media.

// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,
			database.NewSQLDatabase,

			// Storage and processing
			NewLayout,
			storage.NewCleaner,
			NewProber,
			processing.OptionsFromConfig,
			processing.NewProcessor,

			// Initialize Repository
			media.NewMediaRepository,

			// Initialize Service
			media.NewEventHub,
			func(h *media.EventHub) media.EventPublisher { return h },
			media.NewMediaService,
			media.NewReconciler,
			media.NewReconcileScheduler,

			// Initialize Controller
			media.NewMediaController,

			// Initialize API Routes
			AsRoute(media.NewMediaApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config, log *zap.Logger) {
				utils.SetSecret(cfg.JWTSecret)
				if cfg.SkipAuth {
					log.Warn("SKIP_AUTH is enabled, every request acts as an admin")
				}
			},
			InitializeStorage,
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartReconciler,
		),
	)

	app.Run()
}

// Package server contains the HTTP handlers for the classifieds API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"classifieds/internal/auth"
	"classifieds/internal/bootstrap"
	"classifieds/internal/cache"
	"classifieds/internal/config"
	"classifieds/internal/database"
	"classifieds/internal/events"
	"classifieds/internal/media"
	"classifieds/internal/middleware"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/service"
	"classifieds/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	store          storage.Store
	publisher      events.Publisher
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus

	authService       *service.AuthService
	userService       *service.UserService
	categoryService   *service.CategoryService
	listingService    *service.ListingService
	moderationService *service.ModerationService
	statsService      *service.StatsService
}

// Deps are the already-initialized collaborators of a Server.
type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Store     storage.Store
	Publisher events.Publisher
}

// NewServer connects every backing service named by cfg and builds the server.
// Built-in categories are seeded on every start; existing rows are left alone.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SeedCategories: true})
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}

	srv := NewServerWithDeps(cfg, Deps{
		DB:        db,
		Redis:     rdb,
		Store:     store,
		Publisher: events.New(cfg.NATSURL),
	})
	srv.app = srv.NewApp()
	return srv, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use it with SQLite, miniredis and an in-memory store.
func NewServerWithDeps(cfg *config.Config, deps Deps) *Server {
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}

	userRepo := repository.NewUserRepository(deps.DB)
	categoryRepo := repository.NewCategoryRepository(deps.DB)
	listingRepo := repository.NewListingRepository(deps.DB)

	var images *media.Processor
	if deps.Store != nil {
		images = media.NewProcessor(deps.Store, cfg.ImageMaxUploadSizeMB, cfg.ImageWebPVariants)
	}
	tokens := auth.NewTokenIssuer(
		cfg.JWTSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLHours)*time.Hour,
		deps.Redis,
	)

	return &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		store:          deps.Store,
		publisher:      deps.Publisher,
		promMiddleware: middleware.InitMetrics("classifieds-api"),

		authService:     service.NewAuthService(userRepo, tokens, images),
		userService:     service.NewUserService(userRepo, images),
		categoryService: service.NewCategoryService(categoryRepo),
		listingService: service.NewListingService(listingRepo, categoryRepo, images, deps.Publisher, service.ListingPolicy{
			AutoApprove: cfg.ListingAutoApprove,
			MaxImages:   cfg.MaxListingImages,
		}),
		moderationService: service.NewModerationService(listingRepo, userRepo, deps.Store, deps.Publisher),
		statsService:      service.NewStatsService(repository.NewStatsRepository(deps.DB)),
	}
}

// NewApp builds the Fiber application with every middleware and route mounted.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Classifieds API",
		BodyLimit: s.bodyLimit(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// bodyLimit leaves room for a full set of listing images plus form fields.
func (s *Server) bodyLimit() int {
	perImage := s.config.ImageMaxUploadSizeMB
	if perImage <= 0 {
		perImage = media.DefaultMaxUploadSizeMB
	}
	return (perImage*models.MaxListingImages + 1) * 1024 * 1024
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and trace ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if s.servesLocalMedia() {
		app.Static(s.config.MediaBaseURL, s.config.MediaRoot, fiber.Static{ByteRange: true})
	}

	api := app.Group("/api", s.IdentifyActor(), s.BlockedUserGate())

	authGroup := api.Group("/auth")
	authGroup.Post("/register", middleware.RateLimit(s.redis, 5, 10*time.Minute, "register"), s.Register)
	authGroup.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/token/refresh", s.RefreshToken)
	authGroup.Post("/logout", s.Logout)
	authGroup.Get("/profile", s.AuthRequired(), s.GetProfile)
	authGroup.Put("/profile", s.AuthRequired(), s.UpdateProfile)
	authGroup.Patch("/profile", s.AuthRequired(), s.UpdateProfile)

	categories := api.Group("/categories")
	categories.Get("/", s.ListCategories)
	categories.Get("/:id", s.GetCategory)

	listings := api.Group("/listings")
	listings.Get("/", s.ListListings)
	listings.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.SearchListings)
	listings.Get("/my", s.AuthRequired(), s.MyListings)
	listings.Get("/:id", s.GetListing)
	listings.Post("/", s.AuthRequired(), middleware.RateLimit(s.redis, 10, time.Minute, "create_listing"), s.CreateListing)
	listings.Put("/:id", s.AuthRequired(), s.UpdateListing)
	listings.Patch("/:id", s.AuthRequired(), s.UpdateListing)
	listings.Delete("/:id", s.AuthRequired(), s.DeleteListing)

	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())
	admin.Get("/stats", s.AdminStats)

	adminListings := admin.Group("/listings")
	adminListings.Get("/", s.AdminListListings)
	// Specific routes before the generic /:id ones.
	adminListings.Post("/bulk", s.AdminBulkListings)
	adminListings.Post("/:id/moderate", s.AdminModerateListing)
	adminListings.Post("/:id/approve", s.AdminModerateAs(service.ActionApprove))
	adminListings.Post("/:id/reject", s.AdminModerateAs(service.ActionReject))
	adminListings.Get("/:id", s.AdminGetListing)
	adminListings.Delete("/:id", s.AdminModerateAs(service.ActionDelete))

	adminUsers := admin.Group("/users")
	adminUsers.Get("/", s.AdminListUsers)
	adminUsers.Post("/bulk", s.AdminBulkUsers)
	adminUsers.Post("/:id/block", s.AdminBlockUser)
	adminUsers.Post("/:id/unblock", s.AdminUnblockUser)
	adminUsers.Get("/:id", s.AdminGetUser)

	adminCategories := admin.Group("/categories")
	adminCategories.Post("/", s.AdminCreateCategory)
	adminCategories.Put("/:id", s.AdminUpdateCategory)
	adminCategories.Patch("/:id", s.AdminUpdateCategory)
	adminCategories.Delete("/:id", s.AdminDeleteCategory)
}

// servesLocalMedia reports whether uploaded assets live on local disk under a path of this app.
func (s *Server) servesLocalMedia() bool {
	local := s.config.MediaBackend == "" || s.config.MediaBackend == "local"
	return local && s.config.MediaRoot != "" && strings.HasPrefix(s.config.MediaBaseURL, "/")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck pings the database and, when configured, Redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start listens on the configured port. It blocks until the listener stops.
func (s *Server) Start() error {
	if s.app == nil {
		s.app = s.NewApp()
	}
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops the HTTP server and closes every backing connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.publisher != nil {
		s.publisher.Close()
	}

	if err := database.Close(); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}

	if err := cache.Close(); err != nil {
		middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}

package app

import (
	"net/http"

	"agora-backend/internal/auth"
	"agora-backend/internal/boards"
	"agora-backend/internal/config"
	"agora-backend/internal/constants"
	"agora-backend/internal/health"
	"agora-backend/internal/infrastructure/database"
	"agora-backend/internal/market"
	"agora-backend/internal/middleware"
	"agora-backend/internal/pricing"
	"agora-backend/internal/user"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route
// registration. Returns the DB and Redis handles so the entry point can
// verify connectivity before listening.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Session (Redis); the same client feeds the health marker
	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)

	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}

	// --- Routes (no auth) ---
	healthHandlers := &health.Handlers{
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			healthHandlers.DB = sqlDB
		}
	}
	app.Get("/", healthHandlers.Dashboard)
	app.Get("/reset", healthHandlers.Reset)
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/errors", healthHandlers.Errors)

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	var userFinder auth.UserFinder
	if db != nil {
		userFinder = &auth.GormUserFinder{DB: db}
	}
	authHandlers := &auth.Handlers{
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", authHandlers.Login)
	authGroup.Get("/me", authHandlers.Me)
	authGroup.Delete("/logout", authHandlers.Logout)

	// --- Protected modules (auth required) ---
	if db != nil && rdb != nil {
		boardsService := &boards.Service{
			DB:       db,
			Rdb:      rdb,
			Registry: boards.NewRegistry(db),
		}
		boardsHandlers := &boards.Handlers{Service: boardsService, Collab: cfg.CollabEnabled}
		boardsGroup := app.Group("/api/v1/boards", middleware.RequireAuth())
		boardsGroup.Post("/", middleware.AuthorizePermission(constants.CreateBoard), boardsHandlers.CreateBoard)
		boardsGroup.Get("/resolve/:slug", middleware.AuthorizePermission(constants.ViewBoards), boardsHandlers.ResolveSlug)
		boardsGroup.Post("/:docId/deltas", middleware.AuthorizePermission(constants.EditBoard), boardsHandlers.PostDelta)
		boardsGroup.Get("/:docId/snapshot", middleware.AuthorizePermission(constants.ViewBoards), boardsHandlers.Snapshot)
		boardsGroup.Get("/:docId/structure", middleware.AuthorizePermission(constants.ViewBoards), boardsHandlers.Structure)

		marketService := &market.Service{
			DB:         db,
			Pricing:    pricing.Default(),
			Securities: boardsService,
		}
		marketHandlers := &market.Handlers{
			Service:  marketService,
			Resolver: boardsService,
			Enabled:  cfg.MarketEnabled,
		}
		marketGroup := app.Group("/api/v1/market", middleware.RequireAuth())
		marketGroup.Post("/:docId/buy-shares", middleware.AuthorizePermission(constants.Trade), marketHandlers.BuyShares)
		marketGroup.Get("/:docId/holdings", middleware.AuthorizePermission(constants.ViewBoards), marketHandlers.Holdings)
		marketGroup.Post("/:docId/holdings-breakdown", middleware.AuthorizePermission(constants.ViewBoards), marketHandlers.HoldingsBreakdown)
		marketGroup.Post("/:docId/price-history", middleware.AuthorizePermission(constants.ViewBoards), marketHandlers.PriceHistory)

		userService := &user.Service{DB: db, Rdb: rdb}
		userHandlers := &user.Handlers{Service: userService}
		usersGroup := app.Group("/api/v1/users", middleware.RequireAuth())
		usersGroup.Post("/create-user", middleware.AuthorizePermission(constants.ManageUsers), userHandlers.CreateUser)
		usersGroup.Patch("/update-role", middleware.AuthorizePermission(constants.ManageUsers), userHandlers.UpdateRole)
	}

	return app, db, rdb, nil
}

// Handler returns an http.Handler for serverless deployment.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}

package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/aotpy/username-checker-backend/config"
	"github.com/aotpy/username-checker-backend/handlers"
	"github.com/aotpy/username-checker-backend/services"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	// Configure logging
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Initialize services
	fetcher := services.NewFetcher()
	telegramService := services.NewTelegramService(fetcher, cfg.TelegramBaseURL, cfg.TelegramTimeout)
	fragmentAPIService := services.NewFragmentAPIService(cfg.FragmentBaseURL, cfg.FragmentAPITimeout)

	var renderedFetcher *services.RenderedFetcher
	if cfg.RenderedFallback {
		renderedFetcher = services.NewRenderedFetcher(cfg.FragmentTimeout)
		logrus.Info("Rendered fetch fallback enabled")
	}
	fragmentService := services.NewFragmentService(fetcher, fragmentAPIService, renderedFetcher, cfg.FragmentBaseURL, cfg.FragmentTimeout)

	priceService := services.NewPriceService(fetcher, cfg.RatesURL, cfg.RatesTimeout)
	resultCache := services.NewCheckResultCache(cfg.CacheTTL, cfg.CacheMaxSize)
	checkerService := services.NewCheckerService(telegramService, fragmentService, priceService, resultCache, cfg.Branding, cfg.BatchWorkers)

	logrus.WithFields(logrus.Fields{
		"telegram_base_url": cfg.TelegramBaseURL,
		"fragment_base_url": cfg.FragmentBaseURL,
		"cache_ttl":         cfg.CacheTTL,
		"batch_workers":     cfg.BatchWorkers,
	}).Info("Username checker services initialized")

	// Periodic metrics summaries for operators watching the logs.
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			telegramService.LogMetricsSummary()
			fragmentService.LogMetricsSummary()
			fragmentAPIService.LogMetricsSummary()
			priceService.LogMetricsSummary()
			fetcher.LogMetricsSummary()
		}
	}()

	// Initialize handlers
	checkHandler := handlers.NewCheckHandler(checkerService, cfg.Branding)
	priceHandler := handlers.NewPriceHandler(fragmentAPIService, cfg.Branding)
	healthHandler := handlers.NewHealthHandler(fetcher, cfg, map[string]handlers.MetricsSource{
		"telegram":     telegramService,
		"fragment":     fragmentService,
		"fragment_api": fragmentAPIService,
		"rates":        priceService,
	})

	// Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: "username-checker-backend",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Routes
	app.Get("/", healthHandler.Root)
	app.Get("/check", checkHandler.CheckUsername)
	app.Post("/batch", checkHandler.CheckBatch)
	app.Get("/validate", checkHandler.ValidateUsername)
	app.Get("/price", priceHandler.LookupPrice)
	app.Get("/health", healthHandler.HealthCheck)
	app.Get("/status", healthHandler.Status)

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/portfoliopulse/backend/src/config"
	"github.com/username/portfoliopulse/backend/src/handlers"
	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/scheduler"
	"github.com/username/portfoliopulse/backend/src/services"
	"github.com/username/portfoliopulse/backend/src/sources"
	"github.com/username/portfoliopulse/backend/src/sources/yahoo"
	"github.com/username/portfoliopulse/backend/src/workbook"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
			"http://localhost:5000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("PortfolioPulse backend server starting...")

	store := workbook.NewStore(config.Cfg.WorkbookPath, config.Cfg.WorkbookCacheTTL)
	logger.L.Info("Workbook store initialized",
		"path", config.Cfg.WorkbookPath,
		"sheet", config.Cfg.PositionsSheetName)

	registry := sources.NewRegistry()
	registry.Register("yahoo", yahoo.NewProvider(yahoo.Config{
		BaseURL:         config.Cfg.YahooBaseURL,
		RequestInterval: config.Cfg.YahooRequestInterval,
	}))

	notifier := services.NewTelegramNotifier(config.Cfg.TelegramBotToken, config.Cfg.TelegramChatID)

	updater := services.NewUpdaterService(
		store,
		registry,
		notifier,
		config.Cfg.PositionsSheetName,
		config.Cfg.SnapshotSheetPrefix,
		config.Cfg.PriceSources,
	)

	if config.Cfg.SchedulerEnabled {
		sched := scheduler.New(updater, config.Cfg.SchedulerInterval)
		go sched.Start(context.Background())
	}

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	portfolioHandler := handlers.NewPortfolioHandler(updater, reportCache)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "PortfolioPulse Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", portfolioHandler.HandleGetStatus)
		r.Post("/update", portfolioHandler.HandleRunUpdate)
		r.Get("/portfolio", portfolioHandler.HandleGetPortfolio)
		r.Get("/summary", portfolioHandler.HandleGetSummary)
		r.Get("/logs", portfolioHandler.HandleGetLogs)
		r.Get("/test-workbook", portfolioHandler.HandleTestWorkbook)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}

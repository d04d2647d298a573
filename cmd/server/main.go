package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearlane/rewards/internal/config"
	"github.com/clearlane/rewards/internal/database"
	"github.com/clearlane/rewards/internal/handlers"
	mW "github.com/clearlane/rewards/internal/middleware"
	"github.com/clearlane/rewards/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

// @title ClearLane Rewards API
// @version 1.0
// @description Points ledger, reward catalog and achievements for ClearLane drivers
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("static.dir", "STATIC_DIR")
	viper.BindEnv("docs.openapi_path", "OPENAPI_PATH")
	config.BindRewardsEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("static.dir", "./static/rewards")
	viper.SetDefault("docs.openapi_path", "./api/openapi.yaml")

	db := database.InitDatabase()
	defer database.CloseDB()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	cfg := config.LoadRewardsConfig()

	events := services.NewEventPublisher(redisClient, cfg.EventQueue)
	ledgerService := services.NewLedgerService(db)
	achievementService := services.NewAchievementService(db, ledgerService, redisClient, events, cfg.AchievementCacheTTL)
	awardService := services.NewAwardService(db, ledgerService, achievementService, events, cfg)
	catalogService := services.NewCatalogService(db)
	redemptionService := services.NewRedemptionService(db, redisClient, ledgerService, events, cfg)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := achievementService.SeedDefaultAchievements(seedCtx); err != nil {
		log.Printf("Warning: Failed to seed default achievements: %v", err)
	}
	cancelSeed()

	expiryWorker := services.NewExpiryWorker(redemptionService, cfg.SweepInterval)
	expiryWorker.Start()
	defer expiryWorker.Stop()

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{"status": status, "redis": redisClient != nil})
	})

	// API documentation
	handlers.MountDocs(r, viper.GetString("docs.openapi_path"))

	// Reward and badge artwork
	r.Handle("/assets/*", http.StripPrefix("/assets/", mW.StaticFileServer(viper.GetString("static.dir"))))

	handlers.Mount(r,
		handlers.NewAwardHandler(awardService),
		handlers.NewRewardsHandler(ledgerService, catalogService, redemptionService),
		handlers.NewAchievementHandler(achievementService))

	port := viper.GetString("server.port")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

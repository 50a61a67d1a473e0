/**
 * @description
 * This is the main entry point for the matching and settlement engine. It is
 * responsible for initializing all components of the service, including
 * configuration, the database connection pool, the event producer, the
 * optional Redis sweep lock, the cron scheduler for the periodic sweeps, and
 * the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 * - github.com/redis/go-redis/v9: Redis client for the sweep lock.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/pointchart, pkg/rabbitmq: Service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/api"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/app"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/config"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
	"github.com/Startups-dev/Pixiedvc-sub000/pkg/pointchart"
	"github.com/Startups-dev/Pixiedvc-sub000/pkg/rabbitmq"
)

func main() {
	// Load .env for local development; in deployed environments the variables
	// come from the process environment.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting matching engine\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish match lifecycle events.
	// Publishing is best-effort; a broker outage degrades to the fallback.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	engineService := app.NewService(repository, producer, app.SettingsFromConfig(cfg))

	// Point-chart pricing client is optional; detail views fall back to the
	// stored legacy estimate without it.
	if strings.TrimSpace(cfg.PointChartAPIBaseURL) != "" {
		engineService.SetPricingClient(pointchart.NewClient(cfg.PointChartAPIBaseURL, cfg.InternalAPIKey))
	} else {
		log.Println("level=warn component=bootstrap msg=\"point chart client not configured; live quotes disabled\" env=POINT_CHART_API_BASE_URL")
	}

	// Optional Redis sweep lock to single-flight full allocator sweeps.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; sweep lock disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; sweep lock disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				engineService.SetSweepLock(app.NewRedisSweepLock(redisClient, "engine:matcher:sweep", 5*time.Minute))
				log.Println("level=info component=bootstrap msg=\"redis connected; sweep lock enabled\"")
			}
		}
	}

	// Start the cron scheduler for the periodic sweeps.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobs := app.NewJobs(engineService, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.MatcherSweepSchedule, cfg.ExpirySweepSchedule)
	scheduler.Start()

	// Initialize the API handlers and router.
	handlers := api.NewHandler(engineService)
	router := api.NewRouter(handlers, cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	// Wait for a termination signal, then shut everything down gracefully.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=bootstrap msg=\"shutdown signal received\"")

	schedulerCtx := scheduler.Stop()
	<-schedulerCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=bootstrap msg=\"server shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"engine stopped\"")
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"travel-booking/internal/auth"
	"travel-booking/internal/booking"
	booking_api "travel-booking/internal/booking/api"
	bookingdb "travel-booking/internal/booking/db"
	bookingredis "travel-booking/internal/booking/redis"
	"travel-booking/internal/catalog"
	catalog_api "travel-booking/internal/catalog/api"
	catalogdb "travel-booking/internal/catalog/db"
	"travel-booking/internal/config"
	"travel-booking/internal/database/migrations"
	"travel-booking/internal/gateway"
	"travel-booking/internal/kafka"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
	"travel-booking/internal/sse"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting booking service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("CONFIG", "JWT_SECRET not set")
	}
	if cfg.Gateway.Secret == "" {
		log.Fatal("CONFIG", "GATEWAY_KEY_SECRET not set")
	}

	ctx := context.Background()

	bunDB := connectPostgres(cfg, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		})
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "Migrations applied")
	}

	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		requiredTopics := []string{
			cfg.Kafka.Topics.BookingCreated,
			cfg.Kafka.Topics.BookingPaid,
			cfg.Kafka.Topics.BookingConfirmed,
			cfg.Kafka.Topics.BookingCancelled,
			cfg.Kafka.Topics.PackageCreated,
			cfg.Kafka.Topics.PackageDeleted,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	httpClient := &http.Client{
		Timeout: cfg.Gateway.Timeout,
	}
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.Secret, httpClient, log)

	emitter := sse.NewMarketEventEmitter()
	guard := bookingredis.NewRedis(redisClient, cfg.Redis.OrderCacheTTL, cfg.Redis.VerifyLockTTL)

	// A typed nil *kafka.Producer inside the interface would dodge the
	// services' nil checks, so only assign when Kafka is up.
	var catalogProducer catalog.Publisher
	var bookingProducer booking.Publisher
	if producer != nil {
		catalogProducer = producer
		bookingProducer = producer
	}

	catalogService := catalog.NewService(
		&catalogdb.DB{Bun: bunDB},
		catalogProducer,
		emitter,
		cfg.Kafka.Topics,
		log,
	)

	bookingService := booking.NewService(
		&bookingdb.DB{Bun: bunDB},
		catalogService,
		gatewayClient,
		guard,
		bookingProducer,
		emitter,
		cfg,
		log,
	)

	catalogHandler := catalog_api.NewHandler(catalogService, log)
	bookingHandler := booking_api.NewHandler(bookingService, log)
	sseHandler := booking_api.NewSSEHandler(log, emitter)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Server.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))

		r.Route("/api", func(r chi.Router) {
			r.Route("/packages", func(r chi.Router) {
				r.Get("/", catalogHandler.ListPackages)
				r.Get("/{packageId}", catalogHandler.GetPackage)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(models.RoleAgent))
					r.Post("/", catalogHandler.CreatePackage)
					r.Delete("/{packageId}", catalogHandler.DeletePackage)
				})
			})

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", bookingHandler.ListBookings)
				r.Get("/{bookingId}", bookingHandler.GetBooking)
				r.Post("/{bookingId}/cancel", bookingHandler.CancelBooking)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(models.RoleCustomer))
					r.Post("/", bookingHandler.CreateBooking)
					r.Post("/{bookingId}/payment-order", bookingHandler.CreatePaymentOrder)
					r.Post("/{bookingId}/verify", bookingHandler.VerifyPayment)
				})

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(models.RoleAgent))
					r.Post("/{bookingId}/confirm", bookingHandler.ConfirmBooking)
				})
			})

			r.Route("/stream", func(r chi.Router) {
				r.Get("/packages", sseHandler.HandlePackageStream)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(models.RoleAgent))
					r.Get("/agent", sseHandler.HandleAgentStream)
				})
			})
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking service shutdown complete")
	}
}

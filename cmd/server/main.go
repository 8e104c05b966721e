package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avrach/go_storefront/internal/assembler"
	"github.com/avrach/go_storefront/internal/cartsync"
	storefronthttp "github.com/avrach/go_storefront/internal/http"
	"github.com/avrach/go_storefront/internal/notification"
	"github.com/avrach/go_storefront/internal/payment"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/avrach/go_storefront/internal/statemachine"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Port            string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	KafkaBrokers    string
	PostgresHost    string
	PostgresPort    int
	PostgresUser    string
	PostgresPass    string
	PostgresDB      string
	MigrationsPath  string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "storefront"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		KafkaBrokers:    getEnv("KAFKA_BROKERS", ""),
		PostgresHost:    getEnv("POSTGRES_HOST", ""),
		PostgresPort:    getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:    getEnv("POSTGRES_USER", "postgres"),
		PostgresPass:    getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:      getEnv("POSTGRES_DB", "storefront"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Cart state lives in mongo; an in-memory repository keeps the binary
	// runnable without any backing services.
	var cartRepo repository.CartRepository = repository.NewMemoryCartRepository()
	if cfg.MongoURI != "" {
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongodb connection failed: %v", err)
		}
		mongoRepo := repository.NewMongoCartRepository(db)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			log.Fatalf("mongodb index creation failed: %v", err)
		}
		cartRepo = mongoRepo
		log.Println("Connected to MongoDB")
	}

	var (
		cache cartsync.CartCache          = cartsync.NoopCache{}
		idem  repository.IdempotencyStore = repository.NewMemoryIdempotencyStore()
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		cache = cartsync.NewRedisCache(client)
		idem = repository.NewRedisIdempotencyStore(client)
		log.Println("Connected to Redis")
	}

	var (
		orderRepo   repository.OrderRepository   = repository.NewMemoryOrderRepository()
		catalogRepo repository.CatalogRepository = repository.NewMemoryCatalogRepository()
	)
	if cfg.PostgresHost != "" {
		db, err := repository.OpenPostgres(&repository.Credentials{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			DBName:   cfg.PostgresDB,
		})
		if err != nil {
			log.Fatalf("postgres connection failed: %v", err)
		}
		defer db.Close()
		if err := repository.RunMigrations(db, cfg.MigrationsPath); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		orderRepo = repository.NewPostgresOrderRepository(db)
		catalogRepo = repository.NewPostgresCatalogRepository(db)
		log.Println("Connected to PostgreSQL")
	}

	var dispatcher notification.Dispatcher = notification.LogDispatcher{}
	if cfg.KafkaBrokers != "" {
		kafkaDispatcher := notification.NewKafkaDispatcher(splitBrokers(cfg.KafkaBrokers)...)
		defer kafkaDispatcher.Close()
		dispatcher = kafkaDispatcher
		log.Println("Kafka dispatcher enabled")
	}

	gateway := payment.NewBreakerGateway(payment.NewStubGateway(payment.RandomOutcome{}))

	syncService := cartsync.NewService(cartRepo, catalogRepo, idem, cache)
	machine := statemachine.New(orderRepo, gateway, dispatcher)
	asm := assembler.New(syncService, catalogRepo, machine)

	router := storefronthttp.NewRouter(
		storefronthttp.NewCartHandler(syncService, cfg.RequestTimeout),
		storefronthttp.NewOrdersHandler(asm, machine, orderRepo, cfg.RequestTimeout),
		storefronthttp.NewServicesHandler(catalogRepo, cfg.RequestTimeout),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

/*
Package config provides configuration management for the sentiment backend.

This package separates configuration concerns from business logic and provides
a centralized way to manage application configuration including the upstream
provider, the analysis service, caching, and other service dependencies.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/analysis"
	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/cache"
	"github.com/marketpulse-labs/sentiment-backend/container"
	"github.com/marketpulse-labs/sentiment-backend/gapscan"
	"github.com/marketpulse-labs/sentiment-backend/handlers"
	"github.com/marketpulse-labs/sentiment-backend/middleware"
	"github.com/marketpulse-labs/sentiment-backend/store"
	"github.com/marketpulse-labs/sentiment-backend/upstream"
)

// Config holds all application configuration
type Config struct {
	ProjectID       string
	LogLevel        string
	ServerPort      string
	TracingEndpoint string
	// Rate limiting configuration
	RateLimitRequestsPerMinute float64
	RateLimitBurst             int
	RateLimitCleanupInterval   time.Duration
	// Enhanced CORS configuration
	CORSConfig CORSConfig
	// Cleanup intervals
	ClientCleanupInterval time.Duration
	// Domain configuration
	UpstreamConfig UpstreamConfig
	AnalysisConfig AnalysisConfig
	CacheConfig    CacheConfig
	BackfillConfig BackfillConfig
}

// UpstreamConfig holds settings for the social-data provider
type UpstreamConfig struct {
	BaseURL string        `json:"base_url"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// AnalysisConfig holds settings for the text-analysis service
type AnalysisConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// CacheConfig holds response-cache settings
type CacheConfig struct {
	// Backend selects "memory" or "datastore"
	Backend          string        `json:"backend"`
	SweepInterval    time.Duration `json:"sweep_interval"`
	SweepProbability float64       `json:"sweep_probability"`
}

// BackfillConfig holds backfill and async processor settings
type BackfillConfig struct {
	MarketUTCOffsetHours int           `json:"market_utc_offset_hours"`
	AsyncWorkers         int           `json:"async_workers"`
	AsyncQueueSize       int           `json:"async_queue_size"`
	AsyncBackpressure    bool          `json:"async_backpressure"`
	AsyncRejectThreshold float64       `json:"async_reject_threshold"`
	AsyncWaitTimeout     time.Duration `json:"async_wait_timeout"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	// Environment-specific settings
	Environment string
	// Allowed origins based on environment
	DevelopmentOrigins []string
	StagingOrigins     []string
	ProductionOrigins  []string
	// Additional CORS settings
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	// Dynamic origin validation
	AllowSubdomains bool
	AllowedDomains  []string
}

// Services holds all service dependencies
type Services struct {
	Container *container.Container
	Logger    *logrus.Logger
}

// AppConfig holds both configuration and services
type AppConfig struct {
	Config   *Config
	Services *Services
}

// NewConfig creates a new configuration instance
func NewConfig() *Config {
	// A missing .env file is fine; real deployments set the environment directly.
	godotenv.Load()

	environment := getEnv("ENVIRONMENT", "development")

	return &Config{
		ProjectID:       getEnv("PROJECT_ID", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		TracingEndpoint: getEnv("JAEGER_COLLECTOR_ENDPOINT", ""),
		// Rate limiting defaults (10 requests per minute, burst of 5)
		RateLimitRequestsPerMinute: getEnvFloat("RATE_LIMIT_RPM", 10.0),
		RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 5),
		RateLimitCleanupInterval:   getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		// Enhanced CORS configuration
		CORSConfig: CORSConfig{
			Environment: environment,
			DevelopmentOrigins: getEnvSlice("DEV_CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:3001",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:3001",
				"http://localhost:8080",
			}),
			StagingOrigins: getEnvSlice("STAGING_CORS_ORIGINS", []string{
				"https://staging.yourdomain.com",
				"https://staging-api.yourdomain.com",
			}),
			ProductionOrigins: getEnvSlice("PROD_CORS_ORIGINS", []string{
				"https://yourdomain.com",
				"https://www.yourdomain.com",
				"https://api.yourdomain.com",
			}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{
				"GET", "POST", "PUT", "DELETE", "OPTIONS",
			}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{
				"Content-Type", "Authorization", "X-Requested-With",
				"X-Request-ID", "Accept", "Origin", "Cache-Control",
			}),
			ExposedHeaders: getEnvSlice("CORS_EXPOSED_HEADERS", []string{
				"X-Request-ID", "X-Cache",
			}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400), // 24 hours
			AllowSubdomains:  getEnvBool("CORS_ALLOW_SUBDOMAINS", false),
			AllowedDomains:   getEnvSlice("CORS_ALLOWED_DOMAINS", []string{}),
		},
		// Cleanup intervals
		ClientCleanupInterval: getEnvDuration("CLIENT_CLEANUP_INTERVAL", 1*time.Minute),
		// Domain configuration
		UpstreamConfig: UpstreamConfig{
			BaseURL: getEnv("UPSTREAM_BASE_URL", "https://api.stocktwits.com"),
			Token:   getEnv("UPSTREAM_TOKEN", ""),
			Timeout: getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		},
		AnalysisConfig: AnalysisConfig{
			BaseURL: getEnv("ANALYSIS_BASE_URL", ""),
			APIKey:  getEnv("ANALYSIS_API_KEY", ""),
			Timeout: getEnvDuration("ANALYSIS_TIMEOUT", 30*time.Second),
		},
		CacheConfig: CacheConfig{
			Backend:          getEnv("CACHE_BACKEND", "memory"),
			SweepInterval:    getEnvDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute),
			SweepProbability: getEnvFloat("CACHE_SWEEP_PROBABILITY", 0.05),
		},
		BackfillConfig: BackfillConfig{
			MarketUTCOffsetHours: getEnvInt("MARKET_UTC_OFFSET_HOURS", gapscan.DefaultMarketOffsetHours),
			AsyncWorkers:         getEnvInt("ASYNC_WORKERS", 2),
			AsyncQueueSize:       getEnvInt("ASYNC_QUEUE_SIZE", 20),
			AsyncBackpressure:    getEnvBool("ASYNC_BACKPRESSURE", true),
			AsyncRejectThreshold: getEnvFloat("ASYNC_REJECT_THRESHOLD", 0.8), // Reject at 80% capacity
			AsyncWaitTimeout:     getEnvDuration("ASYNC_WAIT_TIMEOUT", 5*time.Second),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable is required")
	}
	if c.AnalysisConfig.BaseURL == "" {
		return fmt.Errorf("ANALYSIS_BASE_URL environment variable is required")
	}
	if backend := c.CacheConfig.Backend; backend != "memory" && backend != "datastore" {
		return fmt.Errorf("CACHE_BACKEND must be memory or datastore, got %q", backend)
	}
	return nil
}

// NewServices creates and initializes all service dependencies using DI container
func NewServices(config *Config) (*Services, error) {
	logger := middleware.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize Datastore client
	datastoreClient, err := datastore.NewClient(context.Background(), config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Datastore client: %v", err)
	}
	logger.WithField("project_id", config.ProjectID).Info("Datastore client initialized successfully")

	// Initialize response cache
	var responseCache cache.Cache
	if config.CacheConfig.Backend == "datastore" {
		responseCache = cache.NewDatastoreCache(datastoreClient, logger)
	} else {
		responseCache = cache.NewInMemoryCache(config.CacheConfig.SweepInterval)
	}
	cacheManager := cache.NewManager(responseCache, logger, cache.DefaultTTLs(), config.CacheConfig.SweepProbability)
	logger.WithField("backend", config.CacheConfig.Backend).Info("Cache manager initialized successfully")

	// Upstream gateway and analysis client
	credentials := upstream.NewStaticProvider(config.UpstreamConfig.Token)
	gateway := upstream.NewGateway(config.UpstreamConfig.BaseURL, credentials, logger, config.UpstreamConfig.Timeout)
	analyzer := analysis.NewClient(config.AnalysisConfig.BaseURL, config.AnalysisConfig.APIKey, logger, config.AnalysisConfig.Timeout)

	// Record store, gap scanner, and orchestrator on the market clock
	location := gapscan.MarketLocation(config.BackfillConfig.MarketUTCOffsetHours)
	recordStore := store.NewRecordStore(datastoreClient, logger)
	scanner := gapscan.NewScanner(recordStore, location, logger)
	orchestrator := backfill.NewOrchestrator(scanner, gateway, analyzer, recordStore, location, logger)

	// Initialize dependency injection container
	diContainer := container.NewContainer()
	if err := diContainer.InitializeServices(container.ServiceSet{
		DatastoreClient: datastoreClient,
		CacheManager:    cacheManager,
		Gateway:         gateway,
		Orchestrator:    orchestrator,
		Location:        location,
		Logger:          logger,
		AsyncConfig: handlers.AsyncConfig{
			Workers:         config.BackfillConfig.AsyncWorkers,
			QueueSize:       config.BackfillConfig.AsyncQueueSize,
			Backpressure:    config.BackfillConfig.AsyncBackpressure,
			RejectThreshold: config.BackfillConfig.AsyncRejectThreshold,
			WaitTimeout:     config.BackfillConfig.AsyncWaitTimeout,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize dependency container: %v", err)
	}

	return &Services{
		Container: diContainer,
		Logger:    logger,
	}, nil
}

// NewAppConfig creates a new application configuration with all dependencies
func NewAppConfig() (*AppConfig, error) {
	config := NewConfig()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	services, err := NewServices(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %v", err)
	}

	return &AppConfig{
		Config:   config,
		Services: services,
	}, nil
}

// Close gracefully closes all service connections
func (s *Services) Close() error {
	if s.Container != nil {
		return s.Container.Close()
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as time.Duration with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as bool with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSlice gets an environment variable as a string slice with a default value
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

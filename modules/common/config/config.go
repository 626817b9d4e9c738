package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting for the server.
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBucket  string
	SupabaseStorageBaseURL string

	// Gemini API
	GeminiAPIKeys []string
	GeminiModel   string

	// Job store backend: redis | supabase | memory
	JobStoreBackend string

	// Orchestrator tuning
	WorkerCount   int
	QueueCapacity int
	VariantDelay  time.Duration
	TerminalTTL   time.Duration
	Retention     time.Duration
	SweepInterval time.Duration

	// Video operation endpoint
	VideoAPIEndpoint string
	VideoAPIKey      string

	// Server
	Port string
}

var globalConfig *Config

// LoadConfig reads the .env file (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	useTLS := true
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	globalConfig = &Config{
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "visualizer"),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),

		GeminiAPIKeys: splitKeys(getEnv("GEMINI_API_KEYS", os.Getenv("GEMINI_API_KEY"))),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		JobStoreBackend: getEnv("JOB_STORE_BACKEND", "redis"),

		WorkerCount:   getEnvInt("WORKER_COUNT", 4),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 100),
		VariantDelay:  getEnvDuration("VARIANT_DELAY", 1500*time.Millisecond),
		TerminalTTL:   getEnvDuration("JOB_TTL", 600*time.Second),
		Retention:     getEnvDuration("JOB_RETENTION", 10*time.Minute),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),

		VideoAPIEndpoint: getEnv("VIDEO_API_ENDPOINT", ""),
		VideoAPIKey:      getEnv("VIDEO_API_KEY", ""),

		Port: getEnv("PORT", "8080"),
	}

	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Job store: %s", globalConfig.JobStoreBackend)
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s (bucket: %s)", globalConfig.SupabaseURL, globalConfig.SupabaseStorageBucket)
	log.Printf("   Gemini: %s (%d key(s))", globalConfig.GeminiModel, len(globalConfig.GeminiAPIKeys))
	log.Printf("   Workers: %d (queue capacity: %d)", globalConfig.WorkerCount, globalConfig.QueueCapacity)

	return globalConfig, nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

func (c *Config) validate() error {
	switch c.JobStoreBackend {
	case "redis", "supabase", "memory":
	default:
		return fmt.Errorf("JOB_STORE_BACKEND must be redis, supabase or memory, got %q", c.JobStoreBackend)
	}
	if c.JobStoreBackend == "redis" && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if len(c.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEYS is required")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// splitKeys parses a comma-separated API key list, dropping empty entries.
func splitKeys(raw string) []string {
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// GetRedisAddr builds the Redis connection string.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

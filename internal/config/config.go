package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Graph     GraphConfig
	Pipeline  PipelineConfig
	Audio     AudioConfig
	Sentiment SentimentConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	AnalyzePerHour int
	StatusPerMin   int
	HistoryPerMin  int
}

// StorageConfig controls where uploaded resources live until their job
// finishes and deletes them.
type StorageConfig struct {
	UploadDir     string
	MaxUploadSize int64 // bytes
}

type DatabaseConfig struct {
	Path string // sqlite file for the analysis history store
}

// GraphConfig points at the optional SurrealDB mirror. Leaving URL empty
// disables graph mirroring entirely.
type GraphConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

type PipelineConfig struct {
	Workers int // concurrent analysis executors
}

// AudioConfig points at the feature-extraction/inference microservice.
// An empty ServiceURL switches the client to its deterministic fallback.
type AudioConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

// SentimentConfig points at the lyric sentiment inference service.
type SentimentConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GRAPH_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("storage.max_upload_size", "MAX_UPLOAD_SIZE")
	_ = viper.BindEnv("database.path", "DATABASE_PATH")
	_ = viper.BindEnv("graph.url", "GRAPH_URL")
	_ = viper.BindEnv("graph.namespace", "GRAPH_NAMESPACE")
	_ = viper.BindEnv("graph.database", "GRAPH_DATABASE")
	_ = viper.BindEnv("graph.username", "GRAPH_USERNAME")
	_ = viper.BindEnv("graph.password", "GRAPH_PASSWORD")
	_ = viper.BindEnv("pipeline.workers", "PIPELINE_WORKERS")
	_ = viper.BindEnv("audio.service_url", "AUDIO_SERVICE_URL")
	_ = viper.BindEnv("audio.timeout", "AUDIO_SERVICE_TIMEOUT")
	_ = viper.BindEnv("sentiment.service_url", "SENTIMENT_SERVICE_URL")
	_ = viper.BindEnv("sentiment.timeout", "SENTIMENT_SERVICE_TIMEOUT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.analyze_per_hour", 30)
	viper.SetDefault("ratelimit.status_per_min", 120)
	viper.SetDefault("ratelimit.history_per_min", 60)
	viper.SetDefault("storage.upload_dir", "temp_uploads")
	viper.SetDefault("storage.max_upload_size", 50*1024*1024)
	viper.SetDefault("database.path", "totality.db")
	viper.SetDefault("graph.namespace", "totality")
	viper.SetDefault("graph.database", "industry")
	viper.SetDefault("graph.username", "root")
	viper.SetDefault("pipeline.workers", 2)
	viper.SetDefault("audio.timeout", 120)
	viper.SetDefault("sentiment.timeout", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			AnalyzePerHour: viper.GetInt("ratelimit.analyze_per_hour"),
			StatusPerMin:   viper.GetInt("ratelimit.status_per_min"),
			HistoryPerMin:  viper.GetInt("ratelimit.history_per_min"),
		},
		Storage: StorageConfig{
			UploadDir:     viper.GetString("storage.upload_dir"),
			MaxUploadSize: viper.GetInt64("storage.max_upload_size"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Graph: GraphConfig{
			URL:       viper.GetString("graph.url"),
			Namespace: viper.GetString("graph.namespace"),
			Database:  viper.GetString("graph.database"),
			Username:  viper.GetString("graph.username"),
			Password:  viper.GetString("graph.password"),
		},
		Pipeline: PipelineConfig{
			Workers: viper.GetInt("pipeline.workers"),
		},
		Audio: AudioConfig{
			ServiceURL: viper.GetString("audio.service_url"),
			Timeout:    viper.GetInt("audio.timeout"),
		},
		Sentiment: SentimentConfig{
			ServiceURL: viper.GetString("sentiment.service_url"),
			Timeout:    viper.GetInt("sentiment.timeout"),
		},
	}

	return cfg, nil
}

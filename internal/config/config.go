package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the EduLens services.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	JWTSecret string
	JWTTTL    time.Duration

	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMVisionModel string
	LLMMaxTokens   int
	LLMTemperature float32
	LLMTimeout     time.Duration

	DetectorURL        string
	DetectorConfidence float64
	DetectorTimeout    time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	DashboardCacheTTL time.Duration
	EventsChannel     string
	SSEKeepAlive      time.Duration

	UploadMaxBytes int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ArchiveEnabled reports whether report/bluebook archival is configured.
func (c Config) ArchiveEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and an optional
// .env file. The model API key is the only hard requirement here; the HTTP
// server additionally insists on a JWT secret at startup so the CLI can run
// without one.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EDULENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "EduLens API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", "2m")
	v.SetDefault("detector.confidence", 0.25)
	v.SetDefault("detector.timeout", "30s")
	v.SetDefault("cloudinary.folder", "edulens/archive")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("events.channel", "edulens")
	v.SetDefault("events.keepalive", "30s")
	v.SetDefault("upload.max_mb", 25)

	jwtTTL, err := parseDuration(v, "jwt.ttl")
	if err != nil {
		return Config{}, err
	}
	llmTimeout, err := parseDuration(v, "llm.timeout")
	if err != nil {
		return Config{}, err
	}
	detectorTimeout, err := parseDuration(v, "detector.timeout")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "dashboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(v, "events.keepalive")
	if err != nil {
		return Config{}, err
	}

	maxMB := v.GetInt("upload.max_mb")
	if maxMB <= 0 {
		maxMB = 25
	}

	cfg := Config{
		AppName: v.GetString("app.name"),
		AppEnv:  v.GetString("app.env"),
		AppPort: v.GetString("app.port"),

		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),

		JWTSecret: v.GetString("jwt.secret"),
		JWTTTL:    jwtTTL,

		LLMAPIKey:      v.GetString("llm.api_key"),
		LLMBaseURL:     v.GetString("llm.base_url"),
		LLMModel:       v.GetString("llm.model"),
		LLMVisionModel: v.GetString("llm.vision_model"),
		LLMMaxTokens:   v.GetInt("llm.max_tokens"),
		LLMTemperature: float32(v.GetFloat64("llm.temperature")),
		LLMTimeout:     llmTimeout,

		DetectorURL:        v.GetString("detector.url"),
		DetectorConfidence: v.GetFloat64("detector.confidence"),
		DetectorTimeout:    detectorTimeout,

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),

		DashboardCacheTTL: cacheTTL,
		EventsChannel:     v.GetString("events.channel"),
		SSEKeepAlive:      keepAlive,

		UploadMaxBytes: maxMB << 20,
	}

	if cfg.LLMAPIKey == "" {
		return Config{}, fmt.Errorf("llm api key must be provided")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", key, raw, err)
	}
	return parsed, nil
}

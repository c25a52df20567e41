package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	Auth        AuthConfig       `mapstructure:"auth"`
	LMStudio    LMStudioConfig   `mapstructure:"lmstudio"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Suggestion  SuggestionConfig `mapstructure:"suggestion"`
	Queue       QueueConfig      `mapstructure:"queue"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Image       ImageConfig      `mapstructure:"image"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
	LogDir      string           `mapstructure:"log_dir"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// AuthConfig JWT 驗證設定
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LMStudioConfig 本地模型服務設定
type LMStudioConfig struct {
	URL            string        `mapstructure:"url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	SuggestTimeout time.Duration `mapstructure:"suggest_timeout"`
	DetailTimeout  time.Duration `mapstructure:"detail_timeout"`
}

// DatabaseConfig 資料庫設定
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
	Seed   bool   `mapstructure:"seed"`
}

// RedisConfig Redis 設定
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CacheConfig 建議快取設定
type CacheConfig struct {
	Driver string `mapstructure:"driver"` // sql | redis | memory
}

// SuggestionConfig 建議流程的時間窗設定
type SuggestionConfig struct {
	FreshWindow        time.Duration `mapstructure:"fresh_window"`
	PollWindow         time.Duration `mapstructure:"poll_window"`
	Retention          time.Duration `mapstructure:"retention"`
	PinTaskFingerprint bool          `mapstructure:"pin_task_fingerprint"`
}

// QueueConfig 背景任務隊列設定
type QueueConfig struct {
	Workers       int           `mapstructure:"workers"`
	MaxSize       int           `mapstructure:"max_size"`
	TaskRetention time.Duration `mapstructure:"task_retention"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ImageConfig 菜色示意圖設定
type ImageConfig struct {
	BasePath     string  `mapstructure:"base_path"`
	DefaultImage string  `mapstructure:"default_image"`
	FuzzyCutoff  float64 `mapstructure:"fuzzy_cutoff"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 為選用
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定常用環境變量
	_ = v.BindEnv("lmstudio.url", "LMSTUDIO_URL")
	_ = v.BindEnv("lmstudio.model", "MODEL_NAME")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("cache.driver", "CACHE_DRIVER")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// logger 尚未初始化，改用 fmt.Println
	fmt.Println("Loading configuration", "lmstudio_url:", v.GetString("lmstudio.url"), "model:", v.GetString("lmstudio.model"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default 回傳只含預設值的設定，供測試與工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &config
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "pantry-chef")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "130s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// 驗證設定
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "pantry-chef")

	// LM Studio 設定
	v.SetDefault("lmstudio.url", "http://127.0.0.1:1234/v1/chat/completions")
	v.SetDefault("lmstudio.model", "llama-3.2-3b-instruct")
	v.SetDefault("lmstudio.temperature", 0.7)
	v.SetDefault("lmstudio.suggest_timeout", "180s")
	v.SetDefault("lmstudio.detail_timeout", "120s")

	// 資料庫設定
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "pantry.db")
	v.SetDefault("database.seed", true)

	// Redis 設定
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ai:suggestion")

	// 快取設定
	v.SetDefault("cache.driver", "sql")

	// 建議流程時間窗
	v.SetDefault("suggestion.fresh_window", "24h")
	v.SetDefault("suggestion.poll_window", "10m")
	v.SetDefault("suggestion.retention", "72h")
	v.SetDefault("suggestion.pin_task_fingerprint", false)

	// 隊列設定
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.max_size", 100)
	v.SetDefault("queue.task_retention", "10m")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	// 圖片設定
	v.SetDefault("image.base_path", "/media/recipes")
	v.SetDefault("image.default_image", "default.png")
	v.SetDefault("image.fuzzy_cutoff", 0.5)

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if config.LMStudio.URL == "" {
		return fmt.Errorf("lmstudio url is required")
	}
	if config.LMStudio.SuggestTimeout <= 0 || config.LMStudio.DetailTimeout <= 0 {
		return fmt.Errorf("invalid lmstudio timeout")
	}

	switch config.Cache.Driver {
	case "sql", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache driver %q", config.Cache.Driver)
	}
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}

	if config.Suggestion.FreshWindow <= 0 || config.Suggestion.PollWindow <= 0 {
		return fmt.Errorf("invalid suggestion window")
	}
	if config.Suggestion.Retention < config.Suggestion.FreshWindow {
		return fmt.Errorf("suggestion retention must cover the fresh window")
	}

	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue max size")
	}

	if config.Image.FuzzyCutoff < 0 || config.Image.FuzzyCutoff > 1 {
		return fmt.Errorf("image fuzzy cutoff must be within [0, 1]")
	}

	return nil
}

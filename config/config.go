package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8890"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"habitude"`

	// 本地持久化配置（离线队列 + 打卡标记都落在这个 SQLite 文件里）
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/habitude.db"`

	// Redis 配置（可选，仅用于当日打卡标记的快速镜像，未配置时引擎照常工作）
	RedisAddr     string `env:"REDIS_ADDR" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"hab"`

	// 后端打卡 API 配置
	BackendBaseURL   string `env:"BACKEND_BASE_URL"`
	BackendAPIKey    string `env:"BACKEND_API_KEY"`
	BackendTimeoutMS int    `env:"BACKEND_TIMEOUT_MS" envDefault:"4000"` // 单次网络尝试超时

	// 同步引擎配置
	SyncMaxAttempts   int `env:"SYNC_MAX_ATTEMPTS" envDefault:"3"`
	SyncBackoffBaseMS int `env:"SYNC_BACKOFF_BASE_MS" envDefault:"300"`
	SyncBackoffCapMS  int `env:"SYNC_BACKOFF_CAP_MS" envDefault:"1200"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于签名 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.JWTSecret == "" {
		if Cfg.IsProduction() {
			log.Fatal("JWT_SECRET is required in production")
		}
		Cfg.JWTSecret = "habitude-insecure-dev-secret"
		log.Printf("WARN: JWT_SECRET is not set, using insecure development secret")
	}

	if Cfg.BackendBaseURL == "" {
		log.Printf("WARN: BACKEND_BASE_URL is not set, all check-ins will be queued offline")
	}

	if Cfg.SyncMaxAttempts < 1 {
		log.Fatal("SYNC_MAX_ATTEMPTS must be at least 1")
	}

	if Cfg.RedisAddr == "" {
		log.Printf("WARN: REDIS_ADDR is not set, day-marker cache will fall back to SQLite only")
	}
}

func (c *Config) HasBackend() bool {
	return c.BackendBaseURL != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

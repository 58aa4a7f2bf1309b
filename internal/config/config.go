package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the export
// worker pool.
type Config struct {
	Port string

	AuthToken string

	CORSAllowedOrigins []string

	DatabaseURL string

	LLMAPIKey     string
	LLMBaseURL    string
	LLMModel      string
	LLMTimeoutMS  int
	LLMMaxRetries int

	SummaryCacheTTLSeconds int
	SummaryCacheMaxEntries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	QueueMaxAttempts   int
	QueueBackoffBaseMS int

	WorkerEnabled     bool
	WorkerConcurrency int
	JobTimeoutSeconds int

	SignedURLBase string

	WxAppID             string
	WxAppSecret         string
	WxAPIBaseURL        string
	WxNewLeadTemplateID string
	WxMiniProgramState  string

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://servicewechat.com"}),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		LLMAPIKey:     getEnv("LLM_API_KEY", ""),
		LLMBaseURL:    getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4.1-mini"),
		LLMTimeoutMS:  getEnvInt("LLM_TIMEOUT_MS", 15000),
		LLMMaxRetries: getEnvInt("LLM_MAX_RETRIES", 2),

		SummaryCacheTTLSeconds: getEnvInt("SUMMARY_CACHE_TTL_SECONDS", 900),
		SummaryCacheMaxEntries: getEnvInt("SUMMARY_CACHE_MAX_ENTRIES", 2000),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "export_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "export_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "export_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		QueueMaxAttempts:   getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueBackoffBaseMS: getEnvInt("QUEUE_BACKOFF_BASE_MS", 2000),

		WorkerEnabled:     getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		JobTimeoutSeconds: getEnvInt("JOB_TIMEOUT_SECONDS", 60),

		SignedURLBase: getEnv("SIGNED_URL_BASE", "https://exports.lead-funnel.example"),

		WxAppID:             getEnv("WX_APP_ID", ""),
		WxAppSecret:         getEnv("WX_APP_SECRET", ""),
		WxAPIBaseURL:        getEnv("WX_API_BASE_URL", "https://api.weixin.qq.com"),
		WxNewLeadTemplateID: getEnv("WX_NEW_LEAD_TEMPLATE_ID", ""),
		WxMiniProgramState:  getEnv("WX_MINIPROGRAM_STATE", "trial"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        int
	Host        string
	BaseURL     string
	AdminSecret string
	CORSOrigins []string

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// Session
	SessionSecret string
	SessionMaxAge time.Duration
	CookieSecure  bool

	// Documents
	DocumentBackend string // sqlite, nats, mongo or memory
	DocumentKey     string
	DatabasePath    string
	MongoURI        string
	MongoDatabase   string

	// NATS, shared by the KV document store and the object media store
	NATSURL          string
	NATSKVBucket     string
	NATSObjectBucket string

	// Media
	MediaBackend   string // s3, nats, memory or none
	MediaPublicURL string
	MaxMediaSize   int64
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UseSSL       bool
	S3Region       string

	// Writes
	WriteMaxAttempts int
	WriteRetryDelay  time.Duration

	// Content
	PageSize         int
	MaxStoryLength   int
	MaxCommentLength int

	// Rate Limiting
	StoryRateLimit   int // per window
	CommentRateLimit int // per window
	RateLimitWindow  time.Duration
	RateLimitMode    string // window or bucket

	// Logging
	LogLevel  slog.Level
	LogFormat string // text or json
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first; it never overrides variables that
// are already set.
func Load() *Config {
	_ = godotenv.Load()

	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")

	return &Config{
		Port:        getEnvInt("PORT", 8080),
		Host:        getEnv("HOST", "0.0.0.0"),
		BaseURL:     baseURL,
		AdminSecret: getEnv("ADMIN_SECRET", ""),
		CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionMaxAge: getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour),
		CookieSecure:  getEnvBool("COOKIE_SECURE", false),

		DocumentBackend: strings.ToLower(getEnv("DOCUMENT_BACKEND", "sqlite")),
		DocumentKey:     getEnv("DOCUMENT_KEY", "stories"),
		DatabasePath:    getEnv("DATABASE_PATH", "storywall.db"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "storywall"),

		NATSURL:          getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSKVBucket:     getEnv("NATS_KV_BUCKET", "storywall"),
		NATSObjectBucket: getEnv("NATS_OBJECT_BUCKET", "storywall-media"),

		MediaBackend:   strings.ToLower(getEnv("MEDIA_BACKEND", "memory")),
		MediaPublicURL: strings.TrimRight(getEnv("MEDIA_PUBLIC_URL", baseURL+"/media"), "/"),
		MaxMediaSize:   int64(getEnvInt("MAX_MEDIA_SIZE", 10<<20)),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3UseSSL:       getEnvBool("S3_USE_SSL", true),
		S3Region:       getEnv("S3_REGION", ""),

		WriteMaxAttempts: getEnvInt("WRITE_MAX_ATTEMPTS", 5),
		WriteRetryDelay:  getEnvDuration("WRITE_RETRY_DELAY", 10*time.Millisecond),

		PageSize:         getEnvInt("PAGE_SIZE", 10),
		MaxStoryLength:   getEnvInt("MAX_STORY_LENGTH", 5000),
		MaxCommentLength: getEnvInt("MAX_COMMENT_LENGTH", 2000),

		StoryRateLimit:   getEnvInt("STORY_RATE_LIMIT", 10),
		CommentRateLimit: getEnvInt("COMMENT_RATE_LIMIT", 60),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		RateLimitMode:    strings.ToLower(getEnv("RATE_LIMIT_MODE", "window")),

		LogLevel:  getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	var level slog.Level
	if val := os.Getenv(key); val != "" {
		if err := level.UnmarshalText([]byte(val)); err == nil {
			return level
		}
	}
	return defaultVal
}

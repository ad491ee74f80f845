package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type R2 struct {
	AccountID     string        `env:"R2_ACCOUNT_ID"`
	AccessKey     string        `env:"R2_ACCESS_KEY"`
	SecretKey     string        `env:"R2_SECRET_KEY"`
	BucketName    string        `env:"R2_BUCKET_NAME"`
	PublicBaseURL string        `env:"R2_PUBLIC_BASE_URL"`
	PresignTTL    time.Duration `env:"R2_PRESIGN_TTL" envDefault:"6h"`
}

type Queue struct {
	MaxRetries      int           `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	BatchSize       int           `env:"DISPATCH_BATCH_SIZE" envDefault:"100"`
	ProcessingLease time.Duration `env:"PROCESSING_LEASE" envDefault:"30m"`
	TaskMaxRetry    int           `env:"TASK_MAX_RETRY" envDefault:"3"`
	TaskRetryDelay  time.Duration `env:"TASK_RETRY_DELAY" envDefault:"5m"`
	Concurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
}

type Timeouts struct {
	Default   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"30s"`
	YouTube   time.Duration `env:"YOUTUBE_PUBLISH_TIMEOUT" envDefault:"60s"`
	TikTok    time.Duration `env:"TIKTOK_PUBLISH_TIMEOUT"`
	Instagram time.Duration `env:"INSTAGRAM_PUBLISH_TIMEOUT"`
}

// For returns the publish timeout for a platform, falling back to Default.
func (t Timeouts) For(platform string) time.Duration {
	var d time.Duration
	switch platform {
	case "youtube":
		d = t.YouTube
	case "tiktok":
		d = t.TikTok
	case "instagram":
		d = t.Instagram
	}
	if d <= 0 {
		return t.Default
	}
	return d
}

type Beat struct {
	CheckSchedule   string        `env:"BEAT_CHECK_SCHEDULE" envDefault:"@every 1m"`
	RetrySchedule   string        `env:"BEAT_RETRY_SCHEDULE" envDefault:"@every 1h"`
	MetricsSchedule string        `env:"BEAT_METRICS_SCHEDULE" envDefault:"@every 15m"`
	CheckLeaseTTL   time.Duration `env:"BEAT_CHECK_LEASE_TTL" envDefault:"50s"`
	RetryLeaseTTL   time.Duration `env:"BEAT_RETRY_LEASE_TTL" envDefault:"10m"`
	MetricsLeaseTTL time.Duration `env:"BEAT_METRICS_LEASE_TTL" envDefault:"10m"`
}

type Planner struct {
	Horizon         time.Duration `env:"PLANNER_HORIZON" envDefault:"1440h"`
	MinGap          time.Duration `env:"PLANNER_MIN_GAP" envDefault:"2h"`
	MaxGap          time.Duration `env:"PLANNER_MAX_GAP" envDefault:"24h"`
	DefaultPlatform string        `env:"PLANNER_DEFAULT_PLATFORM" envDefault:"tiktok"`
}

type Config struct {
	GoogleClientID       string            `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string            `env:"GOOGLE_CLIENT_SECRET"`
	YoutubeRefreshToken  string            `env:"YOUTUBE_REFRESH_TOKEN"`
	TiktokAccessToken    string            `env:"TIKTOK_ACCESS_TOKEN"`
	TiktokAPIBaseURL     string            `env:"TIKTOK_API_BASE_URL" envDefault:"https://open.tiktokapis.com"`
	InstagramAccountID   string            `env:"INSTAGRAM_ACCOUNT_ID"`
	InstagramAccessToken string            `env:"INSTAGRAM_ACCESS_TOKEN"`
	InstagramAPIBaseURL  string            `env:"INSTAGRAM_API_BASE_URL" envDefault:"https://graph.instagram.com/v21.0"`
	BlotatoAPIKey        string            `env:"BLOTATO_API_KEY"`
	BlotatoAPIBaseURL    string            `env:"BLOTATO_API_BASE_URL" envDefault:"https://backend.blotato.com/v2"`
	BlotatoAccounts      map[string]string `env:"BLOTATO_ACCOUNTS" envSeparator:"," envKeyValSeparator:":"`
	PostgresURI          string            `env:"POSTGRES_URI"`
	RedisURI             string            `env:"REDIS_URI" envDefault:"localhost:6379"`
	HTTPAddr             string            `env:"HTTP_ADDR" envDefault:":3000"`
	MetricsAddr          string            `env:"METRICS_ADDR" envDefault:":9090"`
	LogFormat            string            `env:"LOG_FORMAT" envDefault:"json"`
	SecretKey            string            `env:"SECRET_KEY"`
	R2                   R2
	Queue                Queue
	Timeouts             Timeouts
	Beat                 Beat
	Planner              Planner
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded:", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}
	return &cfg
}

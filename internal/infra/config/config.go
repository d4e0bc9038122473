package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Server struct {
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"5s"`
		RequestTimeout  time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"30s"`
		SSEHeartbeat    time.Duration `envconfig:"SERVER_SSE_HEARTBEAT" default:"15s"`
	} `envconfig:""`

	Metrics struct {
		Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
		Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`

	Auth struct {
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
		AdminRole string `envconfig:"AUTH_ADMIN_ROLE" default:"admin"`
	} `envconfig:""`

	Storage struct {
		// Driver выбирает долговременную область: redis, postgres или memory.
		Driver string `envconfig:"STORAGE_DRIVER" default:"redis"`
		// SessionDriver выбирает сессионную область: redis или memory.
		SessionDriver string        `envconfig:"SESSION_STORAGE_DRIVER" default:"redis"`
		SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`
		SessionCookie string        `envconfig:"SESSION_COOKIE" default:"safety_session"`
		KeyPrefix     string        `envconfig:"STORAGE_KEY_PREFIX" default:"safety-map:"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	Events struct {
		// Driver выбирает шину событий: rabbitmq, redis или none.
		Driver   string `envconfig:"EVENTS_DRIVER" default:"none"`
		Exchange string `envconfig:"EVENTS_EXCHANGE" default:"story_events"`
		Queue    string `envconfig:"EVENTS_QUEUE" default:"story_moderation"`
	} `envconfig:""`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		AdminChatID int64  `envconfig:"TG_ADMIN_CHAT_ID"`
		// ConsoleURL добавляется ссылкой к уведомлениям о новых историях.
		ConsoleURL  string `envconfig:"TG_CONSOLE_URL"`
		MaxAttempts int    `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"5"`

		// DedupTTL > 0 включает защиту от повторных уведомлений через Redis.
		DedupTTL time.Duration `envconfig:"NOTIFY_DEDUP_TTL" default:"24h"`
	} `envconfig:""`

	Map struct {
		CenterLat float64 `envconfig:"MAP_CENTER_LAT" default:"14.412687356644929"`
		CenterLng float64 `envconfig:"MAP_CENTER_LNG" default:"120.98123147922286"`
		Zoom      int     `envconfig:"MAP_ZOOM" default:"20"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

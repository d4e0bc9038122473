package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"safety-map/internal/adapters/telegram"
	"safety-map/internal/domain"
	"safety-map/internal/infra/cache"
	"safety-map/internal/infra/config"
	"safety-map/internal/infra/kv"
	applog "safety-map/internal/infra/log"
	"safety-map/internal/infra/metrics"
	"safety-map/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.Metrics.Addr)
	}

	var redisClient *redis.Client
	connectRedis := func() *redis.Client {
		if redisClient == nil {
			client, err := kv.Connect(ctx, cfg.RedisAddr)
			if err != nil {
				logger.Fatal().Err(err).Msg("notifier: нет подключения к Redis")
			}
			redisClient = client
		}
		return redisClient
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	var events domain.EventQueue
	switch cfg.Events.Driver {
	case "rabbitmq":
		conn, err := queue.DialRabbit(cfg.RabbitURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: нет подключения к RabbitMQ (RABBITMQ_URL)")
		}
		defer conn.Close()
		bus, err := queue.NewRabbitEventBus(conn, cfg.Events.Exchange, cfg.Events.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: не удалось инициализировать очередь RabbitMQ")
		}
		defer bus.Close()
		events = bus
	case "redis":
		events = queue.NewRedisEventQueue(connectRedis(), cfg.Storage.KeyPrefix+cfg.Events.Queue)
	default:
		logger.Fatal().Str("driver", cfg.Events.Driver).Msg("notifier: шина событий не настроена (EVENTS_DRIVER)")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("notifier: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	if cfg.Telegram.AdminChatID == 0 {
		logger.Fatal().Msg("notifier: не указан чат модераторов (TG_ADMIN_CHAT_ID)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}

	w := &eventWorker{
		log:         logger,
		events:      events,
		notifier:    telegram.NewNotifier(botAPI, cfg.Telegram.AdminChatID, cfg.Telegram.ConsoleURL, applog.Component(logger, "telegram")),
		maxAttempts: cfg.Telegram.MaxAttempts,
		attempts:    make(map[string]int),
	}
	if cfg.Telegram.DedupTTL > 0 {
		w.once = cache.NewRedisOnce(connectRedis(), cfg.Storage.KeyPrefix+"notified:")
		w.dedupTTL = cfg.Telegram.DedupTTL
	}

	logger.Info().Str("events", cfg.Events.Driver).Msg("notifier: запуск обработки очереди")
	w.Run(ctx)
	logger.Info().Msg("notifier: остановлен")
}

// onceRunner выполняет действие не более одного раза на ключ.
type onceRunner interface {
	Do(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
}

type eventWorker struct {
	log         zerolog.Logger
	events      domain.EventQueue
	notifier    domain.Notifier
	maxAttempts int
	once        onceRunner
	dedupTTL    time.Duration
	// attempts считает неудачные доставки по event_id в пределах процесса.
	attempts map[string]int
}

func (w *eventWorker) Run(ctx context.Context) {
	for {
		event, ack, err := w.events.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				w.log.Error().Err(err).Msg("notifier: очередь закрыта брокером")
				return
			}
			w.log.Error().Err(err).Msg("notifier: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}
		w.handle(ctx, event, ack)
	}
}

func (w *eventWorker) handle(ctx context.Context, event domain.StoryEvent, ack domain.AckFunc) {
	eventLog := w.log.With().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Int64("story_id", event.StoryID).
		Logger()

	if event.ID == "" {
		eventLog.Error().Msg("notifier: событие без идентификатора, подтверждаем и пропускаем")
		if err := ack(true); err != nil {
			eventLog.Error().Err(err).Msg("notifier: не удалось подтвердить событие")
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ran, err := w.deliver(sendCtx, event)
	cancel()
	if err == nil && !ran {
		eventLog.Info().Msg("notifier: событие уже было доставлено, подтверждаем")
		if err := ack(true); err != nil {
			eventLog.Error().Err(err).Msg("notifier: не удалось подтвердить событие")
		}
		return
	}
	if err == nil {
		delete(w.attempts, event.ID)
		if err := ack(true); err != nil {
			eventLog.Error().Err(err).Msg("notifier: не удалось подтвердить событие")
		}
		return
	}

	w.attempts[event.ID]++
	attempt := w.attempts[event.ID]
	if attempt < w.maxAttempts {
		eventLog.Warn().Err(err).Int("attempt", attempt).Msg("notifier: уведомление не доставлено, повторим позже")
		if ackErr := ack(false); ackErr != nil {
			eventLog.Error().Err(ackErr).Msg("notifier: не удалось вернуть событие в очередь")
		}
		time.Sleep(time.Second)
		return
	}

	eventLog.Error().Err(err).Int("attempt", attempt).Msg("notifier: достигнут предел попыток, событие отброшено")
	delete(w.attempts, event.ID)
	if err := ack(true); err != nil {
		eventLog.Error().Err(err).Msg("notifier: не удалось подтвердить событие")
	}
}

// deliver отправляет уведомление. ran = false, если событие уже доставлялось.
func (w *eventWorker) deliver(ctx context.Context, event domain.StoryEvent) (bool, error) {
	if w.once == nil {
		return true, w.notifier.Notify(ctx, event)
	}
	return w.once.Do(ctx, event.ID, w.dedupTTL, func() error {
		return w.notifier.Notify(ctx, event)
	})
}

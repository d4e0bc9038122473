package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"safety-map/internal/adapters/storage"
	"safety-map/internal/adapters/web"
	"safety-map/internal/domain"
	"safety-map/internal/infra/config"
	"safety-map/internal/infra/db"
	httpinfra "safety-map/internal/infra/http"
	"safety-map/internal/infra/kv"
	applog "safety-map/internal/infra/log"
	"safety-map/internal/infra/metrics"
	"safety-map/internal/infra/queue"
	"safety-map/internal/usecase/stories"
	"safety-map/internal/usecase/views"
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

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("api: не указан секрет токенов (AUTH_JWT_SECRET)")
	}

	deps := &backends{cfg: cfg, log: logger}
	defer deps.Close()

	durable, err := deps.durable(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("api: не удалось подключить долговременное хранилище")
	}
	session, err := deps.session(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.SessionDriver).Msg("api: не удалось подключить сессионное хранилище")
	}

	store := storage.NewAdapter(durable, session, applog.Component(logger, "storage"))
	repo, err := stories.NewRepository(ctx, store, applog.Component(logger, "stories"))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось загрузить истории")
	}

	opts := []stories.Option{}
	publisher, err := deps.publisher(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("api: не удалось подключить шину событий")
	}
	if publisher != nil {
		opts = append(opts, stories.WithPublisher(publisher))
	}
	service := stories.NewService(repo, applog.Component(logger, "stories"), opts...)

	webServer := web.NewServer(service,
		web.WithLogger(applog.Component(logger, "web")),
		web.WithAuth([]byte(cfg.Auth.JWTSecret), cfg.Auth.AdminRole),
		web.WithSession(cfg.Storage.SessionCookie, cfg.Storage.SessionTTL),
		web.WithMap(views.MapSettings{
			Center: domain.Location{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng},
			Zoom:   cfg.Map.Zoom,
		}),
		web.WithRequestTimeout(cfg.Server.RequestTimeout),
		web.WithHeartbeat(cfg.Server.SSEHeartbeat),
	)

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	srv.Router.Mount("/", webServer.Router())

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("session_storage", cfg.Storage.SessionDriver).
		Str("events", cfg.Events.Driver).
		Msg("api: старт")

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	webServer.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: graceful shutdown failed")
	}
}

// backends открывает внешние зависимости по выбранным драйверам. Клиент Redis общий.
type backends struct {
	cfg     config.AppConfig
	log     zerolog.Logger
	redis   *redis.Client
	closers []func()
}

func (b *backends) redisClient(ctx context.Context) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := kv.Connect(ctx, b.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.closers = append(b.closers, func() { _ = client.Close() })
	return client, nil
}

func (b *backends) durable(ctx context.Context) (domain.KVStore, error) {
	switch b.cfg.Storage.Driver {
	case "memory":
		b.log.Warn().Msg("api: истории хранятся в памяти и пропадут при перезапуске")
		return kv.NewMemory(0), nil
	case "redis":
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return kv.NewRedis(client, b.cfg.Storage.KeyPrefix, 0), nil
	case "postgres":
		if b.cfg.PGDSN == "" {
			return nil, errors.New("не указан PG_DSN")
		}
		pool, err := db.Connect(ctx, b.cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		store := kv.NewPostgres(pool, b.cfg.Storage.KeyPrefix)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер %q", b.cfg.Storage.Driver)
	}
}

func (b *backends) session(ctx context.Context) (domain.KVStore, error) {
	switch b.cfg.Storage.SessionDriver {
	case "memory":
		return kv.NewMemory(b.cfg.Storage.SessionTTL), nil
	case "redis":
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return kv.NewRedis(client, b.cfg.Storage.KeyPrefix+"session:", b.cfg.Storage.SessionTTL), nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер %q", b.cfg.Storage.SessionDriver)
	}
}

func (b *backends) publisher(ctx context.Context) (domain.EventPublisher, error) {
	switch b.cfg.Events.Driver {
	case "", "none":
		return nil, nil
	case "redis":
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return queue.NewRedisEventQueue(client, b.cfg.Storage.KeyPrefix+b.cfg.Events.Queue), nil
	case "rabbitmq":
		conn, err := queue.DialRabbit(b.cfg.RabbitURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = conn.Close() })
		bus, err := queue.NewRabbitEventBus(conn, b.cfg.Events.Exchange, b.cfg.Events.Queue)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = bus.Close() })
		return bus, nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер %q", b.cfg.Events.Driver)
	}
}

// Close освобождает ресурсы в обратном порядке открытия.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

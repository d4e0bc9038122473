package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	StoryTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_map_story_transitions_total",
		Help: "Переходы историй по жизненному циклу",
	}, []string{"transition"})

	StoryCollectionSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "safety_map_story_collection_size",
		Help: "Текущий размер коллекций pending и approved",
	}, []string{"collection"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safety_map_network_request_duration_seconds",
		Help:    "Длительность запросов к хранилищам и брокерам",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_map_network_request_total",
		Help: "Количество запросов к хранилищам и брокерам",
	}, []string{"component", "operation", "target", "status"})

	MalformedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_map_storage_malformed_records_total",
		Help: "Отброшенные при загрузке повреждённые записи",
	}, []string{"key"})

	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_map_events_published_total",
		Help: "Опубликованные события жизненного цикла",
	}, []string{"type", "status"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_map_notifications_total",
		Help: "Уведомления модераторам",
	}, []string{"type", "status"})

	FeedSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "safety_map_feed_subscribers",
		Help: "Количество подписчиков ленты изменений",
	})

	FeedDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safety_map_feed_dropped_total",
		Help: "Изменения, не доставленные медленным подписчикам",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			StoryTransitionsTotal,
			StoryCollectionSize,
			NetworkRequestDuration,
			NetworkRequestTotal,
			MalformedRecordsTotal,
			EventsPublishedTotal,
			NotificationsTotal,
			FeedSubscribers,
			FeedDroppedTotal,
		)
	})
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncTransition увеличивает счётчик переходов жизненного цикла.
func IncTransition(transition string) {
	StoryTransitionsTotal.WithLabelValues(transition).Inc()
}

// SetCollectionSizes обновляет размеры коллекций.
func SetCollectionSizes(pending, approved int) {
	StoryCollectionSize.WithLabelValues("pending").Set(float64(pending))
	StoryCollectionSize.WithLabelValues("approved").Set(float64(approved))
}

// IncMalformed учитывает отброшенную запись.
func IncMalformed(key string) {
	MalformedRecordsTotal.WithLabelValues(key).Inc()
}

// ObserveEvent учитывает публикацию события.
func ObserveEvent(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// ObserveNotification учитывает доставку уведомления.
func ObserveNotification(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	NotificationsTotal.WithLabelValues(eventType, status).Inc()
}

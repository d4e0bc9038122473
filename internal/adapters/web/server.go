package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"safety-map/internal/domain"
	httpinfra "safety-map/internal/infra/http"
	"safety-map/internal/usecase/stories"
	"safety-map/internal/usecase/views"
)

// Lifecycle — операции контроллера историй, которые вызывают представления.
type Lifecycle interface {
	CreateDraft(ctx context.Context, session, text string) (domain.Story, error)
	AttachLocationAndEnqueue(ctx context.Context, session string, loc domain.Location) (domain.Story, error)
	CancelDraft(ctx context.Context, session string) error
	Draft(ctx context.Context, session string) (*domain.Story, error)
	Approve(ctx context.Context, id int64) (domain.Story, bool, error)
	Reject(ctx context.Context, id int64) (bool, error)
	DeleteApproved(ctx context.Context, id int64) (bool, error)
	Snapshot() stories.Snapshot
	Subscribe(buffer int) (<-chan stories.Change, func())
}

var _ Lifecycle = (*stories.Service)(nil)

// Server — HTTP-представления: форма, выбор точки, консоль модерации, публичная карта и поток изменений.
type Server struct {
	life           Lifecycle
	log            zerolog.Logger
	jwtSecret      []byte
	adminRole      string
	sessionCookie  string
	sessionTTL     time.Duration
	mapSettings    views.MapSettings
	requestTimeout time.Duration
	heartbeat      time.Duration
	feedBuffer     int

	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithAuth задаёт секрет HS256 и роль модератора.
func WithAuth(secret []byte, adminRole string) Option {
	return func(s *Server) {
		s.jwtSecret = secret
		s.adminRole = adminRole
	}
}

func WithSession(cookie string, ttl time.Duration) Option {
	return func(s *Server) {
		s.sessionCookie = cookie
		s.sessionTTL = ttl
	}
}

func WithMap(settings views.MapSettings) Option {
	return func(s *Server) {
		s.mapSettings = settings
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithHeartbeat задаёт период комментариев-пингов в потоке событий.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func NewServer(life Lifecycle, opts ...Option) *Server {
	srv := &Server{
		life:           life,
		log:            zerolog.Nop(),
		adminRole:      "admin",
		sessionCookie:  "safety_session",
		sessionTTL:     24 * time.Hour,
		mapSettings:    views.DefaultMapSettings(),
		requestTimeout: 30 * time.Second,
		heartbeat:      15 * time.Second,
		feedBuffer:     16,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Router собирает маршруты. Всё под /api/v1 закрыто токеном, консоль требует роль модератора.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpinfra.Authenticate(s.jwtSecret))
		r.Use(httpinfra.Session(s.sessionCookie, s.sessionTTL))

		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Post("/story", s.handleCreateStory)

			r.Get("/pin-safety-map", s.handleGetPicker)
			r.Post("/pin-safety-map", s.handleSubmitLocation)
			r.Delete("/pin-safety-map", s.handleCancelDraft)

			r.Get("/safety-map", s.handleSafetyMap)

			r.Group(func(r chi.Router) {
				r.Use(httpinfra.RequireRole(s.adminRole))
				r.Get("/manageStories", s.handleConsole)
				r.Post("/manageStories/pending/{id}/approve", s.handleApprove)
				r.Post("/manageStories/pending/{id}/reject", s.handleReject)
				r.Delete("/manageStories/approved/{id}", s.handleDeleteApproved)
			})
		})
	})
	return r
}

// Close завершает открытые потоки событий. http.Server.Shutdown их не прерывает.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

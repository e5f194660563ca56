package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"blogCPT/internal/cache"
	"blogCPT/internal/clock"
	"blogCPT/internal/config"
	"blogCPT/internal/service"
	"blogCPT/internal/session"
)

type Handlers struct {
	PostService    service.PostService
	CommentService service.CommentService
	AuthService    service.AuthService
	Cfg            *config.Config
	Validate       *validator.Validate
	Log            logrus.FieldLogger
	Clock          clock.Clock
	// HealthCheck reports whether the backing store is reachable. Nil means always healthy.
	HealthCheck func() error
	// Cache is reported on by /health when set.
	Cache *cache.Cache
}

type HealthResponse struct {
	Status       string               `json:"status"`
	CacheEntries int                  `json:"cacheEntries"`
	Endpoints    []cache.EndpointInfo `json:"endpoints,omitempty"`
}

func NewHandlers(service *service.Service, config *config.Config, log logrus.FieldLogger) *Handlers {
	return &Handlers{
		PostService:    service.Post,
		CommentService: service.Comment,
		AuthService:    service.Auth,
		Cfg:            config,
		Validate:       validator.New(),
		Log:            log,
		Clock:          clock.System(),
	}
}

// Routes registers every endpoint on a new router.
func (h *Handlers) Routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, "Не найдено", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	r.HandleFunc("/", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/api/categories", h.GetCategories).Methods(http.MethodGet)

	r.HandleFunc("/api/posts", h.GetPosts).Methods(http.MethodGet)
	r.HandleFunc("/api/posts", h.CreatePost).Methods(http.MethodPost)
	r.HandleFunc("/api/posts/{id}", h.GetPost).Methods(http.MethodGet)
	r.HandleFunc("/api/posts/{id}", h.UpdatePost).Methods(http.MethodPut)
	r.HandleFunc("/api/posts/{id}", h.DeletePost).Methods(http.MethodDelete)
	r.HandleFunc("/api/posts/{id}/image", h.UploadImage).Methods(http.MethodPost)
	r.HandleFunc("/api/posts/{id}/comments", h.GetComments).Methods(http.MethodGet)
	r.HandleFunc("/api/posts/{id}/comments", h.CreateComment).Methods(http.MethodPost)

	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/api/me", h.GetCurrentUser).Methods(http.MethodGet)

	return r
}

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, MessageResponse{Message: "blogCPT API"}, http.StatusOK)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.HealthCheck != nil {
		if err := h.HealthCheck(); err != nil {
			h.Log.WithError(err).Warn("health check failed")
			WriteError(w, "Хранилище недоступно", http.StatusServiceUnavailable)
			return
		}
	}
	resp := HealthResponse{Status: "ok"}
	if h.Cache != nil {
		resp.CacheEntries = h.Cache.Len()
		resp.Endpoints = h.Cache.Endpoints()
	}
	writeSuccess(w, resp, http.StatusOK)
}

type sessionKey struct{}

// WithSession attaches the browser session to ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the browser session resolved for the request, if any.
func SessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// forceRefresh reports whether the client asked to bypass cached results.
func forceRefresh(r *http.Request) bool {
	return r.Header.Get("Cache-Control") == "no-cache" || r.URL.Query().Get("refresh") == "true"
}

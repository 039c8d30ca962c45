// Package api serves display snapshots and accepts operator intents over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/madebyjamstudios/jammonitor/internal/config"
	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/madebyjamstudios/jammonitor/internal/policy"
	"github.com/madebyjamstudios/jammonitor/internal/reconcile"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const Name = "api"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dashboard is what the HTTP surface drives.
type Dashboard interface {
	GetStats() model.DashboardStats
	SwitchView(ctx context.Context, view string) error
	Intent(ctx context.Context, name string, category model.Category) error
	SetDragging(dragging bool)
	RefreshPolicy(ctx context.Context) error
	ToggleBypass(ctx context.Context, enable bool) (model.BypassStatus, error)
	RemoteAPs(ctx context.Context) []model.RemoteAP
	SaveRemoteAPs(ctx context.Context, aps []model.RemoteAP) ([]model.RemoteAP, error)
}

// Server register all the API endpoints.
// It implements a net/http.Handler.
type Server struct {
	http.Handler
	logger    *zap.Logger
	dash      Dashboard
	validate  *validator.Validate
	startedAt time.Time
	version   string

	srv    *http.Server
	cancel context.CancelFunc
}

type viewRequest struct {
	View string `json:"view" validate:"required,oneof=overview policy"`
}

type intentRequest struct {
	Interface string `json:"interface" validate:"required,max=32"`
	Category  string `json:"category" validate:"required"`
}

type dragRequest struct {
	Dragging bool `json:"dragging"`
}

type bypassRequest struct {
	Enable *bool `json:"enable" validate:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthCheckResponse is struct of /health endpoint
type HealthCheckResponse struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// New constructs a new Server instance.
func New(cfg *config.APIConfig, dash Dashboard, version string, logger *zap.Logger) *Server {
	s := &Server{
		logger:    logger,
		dash:      dash,
		validate:  validator.New(),
		startedAt: time.Now(),
		version:   version,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(corsHandler(cfg.AllowedOrigins))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.snapshot)
		r.Post("/view", s.switchView)
		r.Route("/policy", func(r chi.Router) {
			r.With(httprate.LimitByIP(cfg.IntentRate, time.Minute)).Post("/intent", s.intent)
			r.Post("/drag", s.drag)
			r.Post("/refresh", s.refresh)
		})
		r.Post("/bypass", s.bypass)
		r.Get("/remote-aps", s.remoteAPs)
		r.Put("/remote-aps", s.saveRemoteAPs)
	})

	s.Handler = r
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func (s *Server) Name() string {
	return Name
}

// Start blocks until ctx is done or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard API listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shCtx)
	case err := <-errCh:
		s.logger.Error("api server failed", zap.Error(err))
		return err
	}
}

func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthCheckResponse{Version: s.version, StartedAt: s.startedAt})
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dash.GetStats())
}

func (s *Server) switchView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.dash.SwitchView(r.Context(), req.View); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.dash.GetStats())
}

func (s *Server) intent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if !s.decode(w, r, &req) {
		return
	}
	category, err := model.ParseCategory(req.Category)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	// the submission outlives a client that hangs up
	ctx := context.WithoutCancel(r.Context())
	if err = s.dash.Intent(ctx, req.Interface, category); err != nil {
		s.writeError(w, intentStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.dash.GetStats().Policy)
}

func intentStatus(err error) int {
	switch {
	case errors.Is(err, policy.ErrUnknownInterface):
		return http.StatusNotFound
	case errors.Is(err, policy.ErrInvalidCategory):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrBypassActive):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) drag(w http.ResponseWriter, r *http.Request) {
	var req dragRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dash.SetDragging(req.Dragging)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.RefreshPolicy(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.dash.GetStats().Policy)
}

func (s *Server) bypass(w http.ResponseWriter, r *http.Request) {
	var req bypassRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.dash.ToggleBypass(context.WithoutCancel(r.Context()), *req.Enable)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) remoteAPs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dash.RemoteAPs(r.Context()))
}

func (s *Server) saveRemoteAPs(w http.ResponseWriter, r *http.Request) {
	var aps []model.RemoteAP
	if err := json.NewDecoder(r.Body).Decode(&aps); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	kept, err := s.dash.SaveRemoteAPs(r.Context(), aps)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, kept)
}

// decode reads and validates a JSON body, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

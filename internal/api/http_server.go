package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/domain"
	"bookswap/internal/service"

	"github.com/rs/zerolog"
)

// Services bundles the engine entry points the HTTP API dispatches to.
type Services struct {
	Exchanges  *service.ExchangeService
	Books      *service.BookService
	Meetings   *service.MeetingService
	Completion *service.CompletionService
	Ratings    *service.RatingService
	Messages   domain.MessageReader
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HTTPServer exposes the exchange engine over JSON/HTTP.
type HTTPServer struct {
	cfg     config.APIConfig
	quota   config.WriteQuotaConfig
	svc     Services
	limiter domain.RateLimiter
	health  healthChecker
	auth    *HTTPAuth
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	quota config.WriteQuotaConfig,
	svc Services,
	limiter domain.RateLimiter,
	health healthChecker,
	logger *zerolog.Logger,
) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:     cfg,
		quota:   quota,
		svc:     svc,
		limiter: limiter,
		health:  health,
		auth:    NewHTTPAuth(cfg),
		logger:  &l,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := requestIDMiddleware(loggingMiddleware(srv.logger, srv.auth.Wrap(srv.quotaMiddleware(mux))))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/v1/requests", s.withCaller(s.handleCreateRequest))
	mux.HandleFunc("GET /api/v1/requests/incoming", s.withCaller(s.handleListIncoming))
	mux.HandleFunc("GET /api/v1/requests/outgoing", s.withCaller(s.handleListOutgoing))
	mux.HandleFunc("GET /api/v1/requests/summary", s.withCaller(s.handlePendingSummary))
	mux.HandleFunc("GET /api/v1/requests/{id}", s.withCaller(s.handleGetRequest))
	mux.HandleFunc("POST /api/v1/requests/{id}/accept", s.withCaller(s.handleAcceptRequest))
	mux.HandleFunc("POST /api/v1/requests/{id}/reject", s.withCaller(s.handleRejectRequest))
	mux.HandleFunc("POST /api/v1/requests/{id}/cancel", s.withCaller(s.handleCancelRequest))

	mux.HandleFunc("GET /api/v1/exchanges/{id}", s.withCaller(s.handleGetExchange))
	mux.HandleFunc("POST /api/v1/exchanges/{id}/cancel", s.withCaller(s.handleCancelExchange))
	mux.HandleFunc("POST /api/v1/exchanges/{id}/meeting", s.withCaller(s.handleProposeMeeting))
	mux.HandleFunc("GET /api/v1/exchanges/{id}/meeting", s.withCaller(s.handleCurrentMeeting))
	mux.HandleFunc("POST /api/v1/exchanges/{id}/meeting/confirm", s.withCaller(s.handleConfirmMeeting))
	mux.HandleFunc("POST /api/v1/exchanges/{id}/code", s.withCaller(s.handleGenerateCode))
	mux.HandleFunc("POST /api/v1/exchanges/{id}/complete", s.withCaller(s.handleComplete))
	mux.HandleFunc("POST /api/v1/exchanges/{id}/ratings", s.withCaller(s.handleRate))
	mux.HandleFunc("GET /api/v1/exchanges/{id}/ratings/mine", s.withCaller(s.handleMyRating))
	mux.HandleFunc("GET /api/v1/exchanges/{id}/messages", s.withCaller(s.handleMessages))

	mux.HandleFunc("PUT /api/v1/books/{id}", s.handleSyncBook)
	mux.HandleFunc("GET /api/v1/books/{id}/committed", s.handleBookCommitted)
	mux.HandleFunc("PATCH /api/v1/books/{id}/availability", s.withCaller(s.handleSetAvailability))
	mux.HandleFunc("DELETE /api/v1/books/{id}", s.withCaller(s.handleDeleteBook))
	mux.HandleFunc("GET /api/v1/books/offered-busy", s.withCaller(s.handleOfferedBusy))

	mux.HandleFunc("GET /api/v1/users/{id}/rating", s.handleUserRating)
	mux.HandleFunc("GET /api/v1/meeting-points", s.handleMeetingPoints)
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.HealthCheck(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type callerHandler func(w http.ResponseWriter, r *http.Request, caller int64)

func (s *HTTPServer) withCaller(next callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.callerID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		next(w, r, caller)
	}
}

// writeDomainError maps an engine error onto its HTTP status.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	statusCode := statusForKind(kind)
	if statusCode == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestIDFrom(r.Context())).Msg("request failed")
		writeError(w, statusCode, kind.String(), "internal error")
		return
	}
	writeError(w, statusCode, kind.String(), domain.ReasonOf(err))
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid id in path")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Wrap(domain.KindValidation, "invalid JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, kind, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "kind": kind})
}

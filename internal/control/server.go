// Package control exposes the engine to local host collaborators (UI shell,
// auth flow, network monitor) over a small HTTP API.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	orchestration "github.com/koscakluka/ema-realtime/core"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Engine is the subset of the orchestration engine the control surface drives.
type Engine interface {
	SubmitText(ctx context.Context, text string) (string, error)
	Rate(ctx context.Context, targetEventID string, rating int) (string, error)
	Interrupt() error
	SetIdentity(userID, sessionID string) error
	SetOnline(online bool) error
	Snapshot(ctx context.Context) (orchestration.Snapshot, error)
}

var _ Engine = (*orchestration.Engine)(nil)

type Server struct {
	router *chi.Mux
	engine Engine
}

func NewServer(engine Engine) *Server {
	s := &Server{
		router: chi.NewRouter(),
		engine: engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "ema-control",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/interrupt", s.handleInterrupt)
		r.Put("/identity", s.handleIdentity)
		r.Put("/connectivity", s.handleConnectivity)
		r.Get("/status", s.handleStatus)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type MessageRequest struct {
	Text string `json:"text"`
}

func (r MessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
	)
}

type FeedbackRequest struct {
	TargetEventID string `json:"target_event_id"`
	Rating        *int   `json:"rating"`
}

func (r FeedbackRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TargetEventID, validation.Required),
		validation.Field(&r.Rating, validation.NotNil),
	)
}

type IdentityRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (r IdentityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.SessionID, validation.Required),
	)
}

type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

func (r ConnectivityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Online, validation.NotNil),
	)
}

type EventResponse struct {
	EventID string `json:"event_id"`
}

type StatusResponse struct {
	PendingUserTurn   *PendingTurn `json:"pending_user_turn,omitempty"`
	AssistantActive   bool         `json:"assistant_active"`
	ResponseID        string       `json:"response_id,omitempty"`
	PendingLogs       int          `json:"pending_logs"`
	InFlightLogs      int          `json:"in_flight_logs"`
	LoggedEvents      int          `json:"logged_events"`
	ExecutedToolCalls int          `json:"executed_tool_calls"`
	UserID            string       `json:"user_id,omitempty"`
	SessionID         string       `json:"session_id,omitempty"`
	Online            bool         `json:"online"`
}

type PendingTurn struct {
	EventID   string `json:"event_id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decode(w, r, &req) {
		return
	}
	eventID, err := s.engine.SubmitText(r.Context(), req.Text)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EventResponse{EventID: eventID})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decode(w, r, &req) {
		return
	}
	eventID, err := s.engine.Rate(r.Context(), req.TargetEventID, *req.Rating)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EventResponse{EventID: eventID})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Interrupt(); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetIdentity(req.UserID, req.SessionID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetOnline(*req.Online); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.Snapshot(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	status := StatusResponse{
		AssistantActive:   snapshot.AssistantActive,
		ResponseID:        snapshot.ResponseID,
		PendingLogs:       snapshot.PendingLogs,
		InFlightLogs:      snapshot.InFlightLogs,
		LoggedEvents:      snapshot.LoggedEvents,
		ExecutedToolCalls: snapshot.ExecutedToolCalls,
		UserID:            snapshot.Identity.UserID,
		SessionID:         snapshot.Identity.SessionID,
		Online:            snapshot.Online,
	}
	if turn := snapshot.PendingUserTurn; turn != nil {
		status.PendingUserTurn = &PendingTurn{
			EventID:   turn.EventID,
			Content:   turn.Content,
			Timestamp: turn.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, req validation.Validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestration.ErrEmptyText), errors.Is(err, orchestration.ErrInvalidRating):
		status = http.StatusBadRequest
	case errors.Is(err, orchestration.ErrUnknownTarget):
		status = http.StatusNotFound
	case errors.Is(err, orchestration.ErrNotConnected):
		status = http.StatusBadGateway
	case errors.Is(err, orchestration.ErrEngineClosed), errors.Is(err, orchestration.ErrEngineNotStarted):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "control request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		logger.InfoContext(r.Context(), "control request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

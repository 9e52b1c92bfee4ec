package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"GapLedger/internal/event"
	"GapLedger/internal/ingestion"
	"GapLedger/internal/observability"
	"GapLedger/internal/query"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer serves the read-only query API plus health and metrics
// endpoints. All domain reads go through the projection tables; the server
// never touches the core engine.
type HTTPServer struct {
	srv    *http.Server
	log    zerolog.Logger
	health *observability.HealthChecker
}

// Deps holds everything the HTTP handlers need. IngestChan feeds manually
// injected commands into the same engine loop as NATS deliveries.
type Deps struct {
	QueryService  *query.QueryService
	HealthChecker *observability.HealthChecker
	IngestChan    chan<- event.Event
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	s := &HTTPServer{
		log:    observability.NewLogger("http"),
		health: deps.HealthChecker,
	}

	r := mux.NewRouter()
	r.Use(s.requestLogger)

	qs := deps.QueryService
	r.HandleFunc("/v1/pool", s.handlePoolStats(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/weeks/{week:[0-9]+}", s.handleWeekStatus(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/policies", s.handlePoliciesByBuyer(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/policies/{id}", s.handlePolicy(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/policies/{id}/settlement", s.handleSettlement(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/stakers/{id}", s.handleStaker(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/stakers/{id}/payments", s.handleQueuePayments(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/stakers/{id}/journal", s.handleJournalHistory(qs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/integrity", s.handleIntegrity(qs)).Methods(http.MethodGet)

	if deps.IngestChan != nil {
		r.HandleFunc("/v1/admin/events", s.handleAdminIngest(deps.IngestChan)).Methods(http.MethodPost)
	}

	if deps.HealthChecker != nil {
		r.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler).Methods(http.MethodGet)
		r.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Start blocks serving requests until the context is cancelled, then shuts
// down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown")
		}
	}()

	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *HTTPServer) handlePoolStats(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := qs.GetPoolStats(r.Context())
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *HTTPServer) handleWeekStatus(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		week, err := strconv.ParseInt(mux.Vars(r)["week"], 10, 64)
		if err != nil {
			badRequest(w, "invalid week")
			return
		}
		status, err := qs.GetWeekStatus(r.Context(), week, time.Now().UTC())
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *HTTPServer) handlePolicy(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		policy, err := qs.GetPolicy(r.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, "policy not found")
			return
		}
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	}
}

func (s *HTTPServer) handlePoliciesByBuyer(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyer, err := uuid.Parse(r.URL.Query().Get("buyer"))
		if err != nil {
			badRequest(w, "buyer query parameter required")
			return
		}
		policies, err := qs.GetPoliciesByBuyer(r.Context(), buyer, queryLimit(r, 100))
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
	}
}

func (s *HTTPServer) handleSettlement(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		settlement, err := qs.GetSettlement(r.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, "settlement not found")
			return
		}
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settlement)
	}
}

func (s *HTTPServer) handleStaker(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		staker, err := qs.GetStaker(r.Context(), id)
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, staker)
	}
}

func (s *HTTPServer) handleQueuePayments(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		payments, err := qs.GetQueuePayments(r.Context(), id, queryLimit(r, 100))
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
	}
}

func (s *HTTPServer) handleJournalHistory(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var afterSeq *int64
		if raw := r.URL.Query().Get("after"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				badRequest(w, "invalid after cursor")
				return
			}
			afterSeq = &v
		}

		entries, err := qs.GetJournalHistory(r.Context(), id, queryLimit(r, 50), afterSeq)
		if err != nil {
			s.serverError(w, err)
			return
		}

		resp := map[string]interface{}{"entries": entries}
		if len(entries) > 0 {
			resp["next_cursor"] = entries[len(entries)-1].Sequence
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *HTTPServer) handleIntegrity(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := qs.VerifyIntegrity(r.Context())
		if err != nil {
			s.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// handleAdminIngest accepts one wire-format command for manual injection,
// for backfills and operational repair. The command goes through the full
// engine pipeline, so duplicates and ordering violations are still rejected
// there.
func (s *HTTPServer) handleAdminIngest(ingest chan<- event.Event) http.HandlerFunc {
	type request struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}

		evt, err := ingestion.ParseRawEvent(ingestion.RawEvent{
			Subject:   "admin",
			Data:      req.Payload,
			Timestamp: time.Now().UTC(),
		}, req.EventType)
		if err != nil {
			badRequest(w, "parse event: "+err.Error())
			return
		}

		select {
		case ingest <- evt:
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":          "accepted",
				"idempotency_key": evt.IdempotencyKey(),
			})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ingest queue full"})
		}
	}
}

func (s *HTTPServer) serverError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("query failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": msg})
}

func pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		badRequest(w, "invalid "+key)
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > 1000 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

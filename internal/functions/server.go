package functions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/common/auth"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/lesson/engine"
	"github.com/codeowl/platform/pkg/config"
	"github.com/codeowl/platform/pkg/logger"
)

// ProcessWeeklyLeagues is the registry name of the weekly ranking.
const ProcessWeeklyLeagues = "process_weekly_leagues"

// Server is the functions HTTP surface.
type Server struct {
	cfg         config.FunctionsConfig
	adminSecret string
	registry    *Registry
	executor    engine.Executor
	forward     *http.Client
	log         *logger.Logger
	now         func() time.Time
}

func NewServer(cfg config.FunctionsConfig, adminSecret string, registry *Registry, executor engine.Executor) *Server {
	return &Server{
		cfg:         cfg,
		adminSecret: adminSecret,
		registry:    registry,
		executor:    executor,
		forward:     &http.Client{Timeout: cfg.ForwardTimeout},
		log:         logger.Get().Named("functions"),
		now:         time.Now,
	}
}

// Router builds the chi router with every function mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.HandleFunc("/weekly-league-trigger", s.weeklyLeagueTrigger)
	r.Post("/process-weekly-leagues", s.processWeeklyLeagues)
	r.Post("/execute-code", s.executeCode)
	r.Post("/verify-admin", s.verifyAdmin)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "procedures": s.registry.Names()})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// weeklyLeagueTrigger forwards a cron firing to the processing function
// and relays whatever it answers.
func (s *Server) weeklyLeagueTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !auth.BearerMatches(r.Header.Get("Authorization"), s.cfg.CronSecret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.ProcessLeaguesURL, strings.NewReader("{}"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.ServiceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceKey)
	}

	resp, err := s.forward.Do(req)
	if err != nil {
		s.log.Error("weekly league forward failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warn("relay weekly league response", zap.Error(err))
	}
	s.log.Info("weekly league trigger relayed", zap.Int("status", resp.StatusCode))
}

// processWeeklyLeagues invokes the weekly ranking by name.
func (s *Server) processWeeklyLeagues(w http.ResponseWriter, r *http.Request) {
	if !s.serviceAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := s.registry.Call(r.Context(), ProcessWeeklyLeagues)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.HasCode(err, errors.CodeConflict) {
			status = http.StatusConflict
		}
		s.log.Error("process weekly leagues failed", zap.Error(err), zap.Int("status", status))
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Weekly leagues processed successfully",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"result":    result,
	})
}

type executeRequest struct {
	Code string `json:"code"`
}

// executeCode proxies a code submission to the execution API.
func (s *Server) executeCode(w http.ResponseWriter, r *http.Request) {
	if !s.serviceAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExecTimeout)
	defer cancel()

	result, err := s.executor.Execute(ctx, req.Code)
	if err != nil {
		s.log.Error("code execution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type verifyAdminRequest struct {
	Secret string `json:"secret"`
}

// verifyAdmin checks an admin secret in constant time.
func (s *Server) verifyAdmin(w http.ResponseWriter, r *http.Request) {
	if s.adminSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "admin secret is not configured")
		return
	}

	var req verifyAdminRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, "secret is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": auth.SecretMatches(req.Secret, s.adminSecret)})
}

func (s *Server) serviceAuthorized(r *http.Request) bool {
	return auth.BearerMatches(r.Header.Get("Authorization"), s.cfg.ServiceKey)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/cybersec-analyzer/internal/application/analysis"
	domain "github.com/bryanwahyu/cybersec-analyzer/internal/domain/analysis"
	hist "github.com/bryanwahyu/cybersec-analyzer/internal/domain/history"
	"github.com/bryanwahyu/cybersec-analyzer/internal/middleware"
)

const semgrepAPIURL = "https://semgrep.dev/api/v1/"

// Options configure the outer surface around the analysis core.
type Options struct {
	CORSOrigins []string
	StaticDir   string
	ToolCommand string
	Checkers    map[string]middleware.HealthChecker
	RateLimit   struct {
		Capacity   int
		RefillRate int
	}
}

type Router struct {
	svc        *appanalysis.Service
	history    hist.Repository
	toolCmd    string
	httpClient *http.Client
}

func NewRouter(svc *appanalysis.Service, history hist.Repository, opts Options) http.Handler {
	r := &Router{
		svc:        svc,
		history:    history,
		toolCmd:    opts.ToolCommand,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if opts.RateLimit.Capacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimit.Capacity, opts.RateLimit.RefillRate))
	}
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Get("/network-test", r.handleNetworkTest)
	mux.Get("/semgrep-test", r.handleToolTest)

	mux.Post("/api/analyze", r.handleAnalyze)
	mux.Get("/api/history", r.wrap(r.handleHistory))

	// Static frontend, mounted last so API routes win
	if opts.StaticDir != "" {
		if st, err := os.Stat(opts.StaticDir); err == nil && st.IsDir() {
			fs := http.FileServer(http.Dir(opts.StaticDir))
			mux.Handle("/*", fs)
		}
	}

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /api/analyze
// Body: {"code": "<source>"}
// Invalid input maps to 400; every other failure kind is one uniform
// 500 carrying the original message. The kind itself stays internal.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) {
	var body domain.Request
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	middleware.IncrementAnalyses()
	report, err := r.svc.Analyze(req.Context(), body)
	if err != nil {
		middleware.IncrementAnalysesFailed()
		if domain.KindOf(err) == domain.KindInvalidInput {
			writeDetail(w, http.StatusBadRequest, domain.Message(err))
			return
		}
		writeDetail(w, http.StatusInternalServerError,
			fmt.Sprintf("Analysis failed: %s", domain.Message(err)))
		return
	}

	middleware.AddIssuesFound(len(report.Issues))
	_ = writeJSON(w, report)
}

// GET /api/history?limit=20
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	if r.history == nil {
		writeDetail(w, http.StatusNotFound, "analysis history is not enabled")
		return nil
	}

	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.history.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /network-test
// Probes the semgrep API so deployment issues are distinguishable
// from analysis failures.
func (r *Router) handleNetworkTest(w http.ResponseWriter, req *http.Request) {
	resp, err := r.httpClient.Get(semgrepAPIURL)
	if err != nil {
		_ = writeJSON(w, map[string]any{
			"semgrep_api_reachable": false,
			"error":                 err.Error(),
		})
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	_ = writeJSON(w, map[string]any{
		"semgrep_api_reachable": true,
		"status_code":           resp.StatusCode,
		"response_size":         len(body),
	})
}

// GET /semgrep-test
// Checks whether the tool server command is runnable on this host.
func (r *Router) handleToolTest(w http.ResponseWriter, req *http.Request) {
	cmdName := r.toolCmd
	if cmdName == "" {
		cmdName = "semgrep"
	}

	path, err := exec.LookPath(cmdName)
	if err != nil {
		_ = writeJSON(w, map[string]any{
			"tool_available": false,
			"error":          err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	result := map[string]any{
		"tool_available": true,
		"path":           path,
		"version_check":  err == nil,
		"version_output": middleware.SanitizeString(string(out)),
	}
	if err != nil {
		result["version_error"] = err.Error()
	}
	_ = writeJSON(w, result)
}

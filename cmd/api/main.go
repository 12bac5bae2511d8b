package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/cybersec-analyzer/internal/application"
	appanalysis "github.com/bryanwahyu/cybersec-analyzer/internal/application/analysis"
	"github.com/bryanwahyu/cybersec-analyzer/internal/config"
	domain "github.com/bryanwahyu/cybersec-analyzer/internal/domain/analysis"
	hist "github.com/bryanwahyu/cybersec-analyzer/internal/domain/history"
	aiclient "github.com/bryanwahyu/cybersec-analyzer/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/cybersec-analyzer/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/cybersec-analyzer/internal/infra/db/postgres"
	"github.com/bryanwahyu/cybersec-analyzer/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/cybersec-analyzer/internal/infra/storage"
	"github.com/bryanwahyu/cybersec-analyzer/internal/infra/toolserver/semgrep"
	"github.com/bryanwahyu/cybersec-analyzer/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.Backend.APIKey == "" {
		// the analyze endpoint rejects every request until the key is
		// set; the server still starts so diagnostics stay reachable
		log.Printf("warning: GEMINI_API_KEY not configured")
	}

	ctx := context.Background()

	checkers := map[string]middleware.HealthChecker{
		"backend_config": &middleware.BackendConfigChecker{APIKey: cfg.Backend.APIKey},
		"tool_command":   &middleware.ToolCommandChecker{Command: toolCommand(cfg)},
	}

	// optional analysis history
	var historyRepo hist.Repository
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		defer db.Close()
		repo := mysqlp.NewHistoryRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("mysql schema error: %v", err)
		}
		historyRepo = repo
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		defer db.Close()
		repo := postgresp.NewHistoryRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema error: %v", err)
		}
		historyRepo = repo
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "":
		// history disabled
	default:
		log.Fatalf("unknown database driver: %s", cfg.Database.Driver)
	}

	// optional report archive
	var archive domain.ReportArchive
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
	}

	// init backend client + tool launcher
	backend := aiclient.NewClient(cfg.Backend.APIKey, cfg.Backend.BaseURL, cfg.Backend.Model)
	launcher := semgrep.NewLauncher(cfg.ToolServer.Command, cfg.ToolServer.Args...)

	// init service
	svc := &appanalysis.Service{
		Backend:        backend,
		Tools:          launcher,
		Clock:          application.SystemClock{},
		APIKey:         cfg.Backend.APIKey,
		Model:          cfg.Backend.Model,
		History:        historyRepo,
		Archive:        archive,
		MaxCodeBytes:   cfg.Analysis.MaxCodeBytes,
		InvokeTimeout:  time.Duration(cfg.Analysis.InvokeTimeoutSec) * time.Second,
		AcquireTimeout: time.Duration(cfg.Analysis.AcquireTimeoutSec) * time.Second,
	}

	// init router
	opts := httpserver.Options{
		CORSOrigins: cfg.CORSOrigins(),
		StaticDir:   cfg.Server.StaticDir,
		ToolCommand: toolCommand(cfg),
		Checkers:    checkers,
	}
	opts.RateLimit.Capacity = cfg.RateLimit.Capacity
	opts.RateLimit.RefillRate = cfg.RateLimit.RefillRate

	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, historyRepo, opts))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // analyses can be long-latency
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func toolCommand(cfg *config.Config) string {
	if cfg.ToolServer.Command != "" {
		return cfg.ToolServer.Command
	}
	return "uvx"
}

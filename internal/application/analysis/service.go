package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/cybersec-analyzer/internal/application"
	domain "github.com/bryanwahyu/cybersec-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/cybersec-analyzer/internal/infra/ai/prompt"

	hist "github.com/bryanwahyu/cybersec-analyzer/internal/domain/history"
)

const (
	agentName             = "Security Researcher"
	defaultMaxCodeBytes   = 128 * 1024
	defaultInvokeTimeout  = 120 * time.Second
	defaultAcquireTimeout = 20 * time.Second
	recordTimeout         = 5 * time.Second
)

// Service implements the analysis orchestration pipeline.
// Service is designed to be used concurrently and is thread-safe:
// every field is read-only after construction and each request owns
// its own tool handle.
type Service struct {
	Backend domain.Backend
	Tools   domain.ToolLauncher
	Clock   application.Clock

	// APIKey is the backend credential; its absence short-circuits
	// before any external call.
	APIKey string
	Model  string

	// Optional adjuncts, recorded best-effort after the pipeline.
	// Nil disables them; the pipeline itself persists nothing.
	History hist.Repository
	Archive domain.ReportArchive

	MaxCodeBytes   int
	InvokeTimeout  time.Duration
	AcquireTimeout time.Duration
}

// Analyze runs the full pipeline for one request and returns the
// validated, enriched report. Failures come back kind-tagged; the
// full internal detail is logged here regardless of what the caller
// surfaces.
func (s *Service) Analyze(ctx context.Context, req domain.Request) (*domain.Report, error) {
	started := s.Clock.Now()
	id := uuid.New().String()

	rep, err := s.run(ctx, req)
	durationMS := s.Clock.Now().Sub(started).Milliseconds()

	s.record(id, started, req, rep, err, durationMS)

	if err != nil {
		log.Printf("analysis failed id=%s kind=%s duration_ms=%d error=%v",
			id, domain.KindOf(err), durationMS, err)
		return nil, err
	}

	s.archive(id, started, rep)
	log.Printf("analysis done id=%s issues=%d duration_ms=%d", id, len(rep.Issues), durationMS)
	return rep, nil
}

// run executes the fixed sequence: credentials, request validation,
// tool acquisition, agent build, invocation, output validation,
// summary enrichment. The order must not change: the cheap checks
// protect backend quota, and the tool handle is released on every
// exit path from the moment it exists.
func (s *Service) run(ctx context.Context, req domain.Request) (*domain.Report, error) {
	if s.APIKey == "" {
		return nil, domain.E(domain.KindConfiguration, errors.New("backend API key not configured"))
	}

	if err := domain.ValidateRequest(req, s.maxCodeBytes()); err != nil {
		return nil, domain.E(domain.KindInvalidInput, err)
	}

	actx, cancel := context.WithTimeout(ctx, s.acquireTimeout())
	defer cancel()
	tool, err := s.Tools.Acquire(actx)
	if err != nil {
		return nil, domain.E(domain.KindToolAcquisition, fmt.Errorf("acquire tool server: %w", err))
	}
	defer func() {
		if cerr := tool.Close(); cerr != nil {
			log.Printf("tool server release error: %v", cerr)
		}
	}()

	agent := domain.AgentConfig{
		Name:         agentName,
		Instructions: prompt.ResearcherInstructions,
		Model:        s.Model,
		OutputSchema: prompt.GetReportSchema(),
		Tool:         tool,
	}

	ictx, icancel := context.WithTimeout(ctx, s.invokeTimeout())
	defer icancel()
	raw, err := s.Backend.Invoke(ictx, agent, prompt.GetAnalysisPrompt(req.Code))
	if err != nil {
		return nil, domain.E(domain.KindBackendInvocation, fmt.Errorf("backend invocation: %w", err))
	}

	rep, err := domain.ParseReport([]byte(raw))
	if err != nil {
		return nil, domain.E(domain.KindOutputValidation, err)
	}

	rep.Summary = prompt.Enrich(len(req.Code), rep.Summary)
	return rep, nil
}

// record writes the run to history when configured. Best-effort: a
// storage failure is logged and never alters the pipeline outcome.
func (s *Service) record(id string, started time.Time, req domain.Request, rep *domain.Report, runErr error, durationMS int64) {
	if s.History == nil {
		return
	}

	rec := &hist.Record{
		ID:         id,
		CreatedAt:  started,
		CodeBytes:  len(req.Code),
		Status:     hist.StatusSuccess,
		DurationMS: durationMS,
	}
	if runErr != nil {
		rec.Status = hist.StatusFailed
		rec.FailKind = string(domain.KindOf(runErr))
	} else {
		counts := rep.Counts()
		rec.Critical = counts.Critical
		rec.High = counts.High
		rec.Medium = counts.Medium
		rec.Low = counts.Low
		rec.Summary = rep.Summary
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.History.Save(ctx, rec); err != nil {
		log.Printf("history save error id=%s: %v", id, err)
	}
}

// archive uploads the final report when an archive store is
// configured. Best-effort, same policy as record.
func (s *Service) archive(id string, started time.Time, rep *domain.Report) {
	if s.Archive == nil {
		return
	}
	key := fmt.Sprintf("reports/%s/%s.json", started.UTC().Format("2006-01-02"), id)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	url, err := s.Archive.SaveReport(ctx, key, rep)
	if err != nil {
		log.Printf("report archive error id=%s: %v", id, err)
		return
	}
	log.Printf("report archived id=%s url=%s", id, url)
}

func (s *Service) maxCodeBytes() int {
	if s.MaxCodeBytes > 0 {
		return s.MaxCodeBytes
	}
	return defaultMaxCodeBytes
}

func (s *Service) invokeTimeout() time.Duration {
	if s.InvokeTimeout > 0 {
		return s.InvokeTimeout
	}
	return defaultInvokeTimeout
}

func (s *Service) acquireTimeout() time.Duration {
	if s.AcquireTimeout > 0 {
		return s.AcquireTimeout
	}
	return defaultAcquireTimeout
}

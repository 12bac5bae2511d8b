package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/bryanwahyu/cybersec-analyzer/internal/domain/analysis"
	hist "github.com/bryanwahyu/cybersec-analyzer/internal/domain/history"
)

// Mock implementations for testing

type mockBackend struct {
	raw   string
	err   error
	calls int
}

func (m *mockBackend) Invoke(_ context.Context, _ domain.AgentConfig, _ string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.raw, nil
}

type mockHandle struct {
	closes int
}

func (m *mockHandle) CallTool(_ context.Context, _ string, _ map[string]any) (string, error) {
	return "{}", nil
}

func (m *mockHandle) Close() error {
	m.closes++
	return nil
}

type mockLauncher struct {
	handle   *mockHandle
	err      error
	acquires int
}

func (m *mockLauncher) Acquire(_ context.Context) (domain.ToolHandle, error) {
	m.acquires++
	if m.err != nil {
		return nil, m.err
	}
	return m.handle, nil
}

type mockHistory struct {
	records []*hist.Record
	err     error
}

func (m *mockHistory) Save(_ context.Context, rec *hist.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockHistory) Latest(_ context.Context, _ int) ([]*hist.Record, error) {
	return m.records, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const backendReply = `{
	"summary": "one critical finding",
	"issues": [{
		"title": "Arbitrary code execution",
		"description": "eval on user input executes attacker-controlled code",
		"code": "eval(input())",
		"fix": "remove eval",
		"cvss_score": 9.8,
		"severity": "critical"
	}]
}`

func newService(backend *mockBackend, launcher *mockLauncher) *Service {
	return &Service{
		Backend: backend,
		Tools:   launcher,
		Clock:   fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		APIKey:  "test-key",
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	backend := &mockBackend{raw: backendReply}
	handle := &mockHandle{}
	launcher := &mockLauncher{handle: handle}
	svc := newService(backend, launcher)

	code := "eval(input())"
	rep, err := svc.Analyze(context.Background(), domain.Request{Code: code})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rep.Issues) != 1 {
		t.Fatalf("want exactly 1 issue, got %d", len(rep.Issues))
	}
	is := rep.Issues[0]
	if is.Title != "Arbitrary code execution" || is.CVSSScore != 9.8 || is.Severity != domain.SeverityCritical {
		t.Fatalf("issue fields lost through the pipeline: %+v", is)
	}
	if !strings.Contains(rep.Summary, "one critical finding") {
		t.Fatalf("backend summary missing: %q", rep.Summary)
	}
	if !strings.Contains(rep.Summary, "13 characters") {
		t.Fatalf("length qualifier missing from summary: %q", rep.Summary)
	}
	if backend.calls != 1 {
		t.Fatalf("want 1 backend call, got %d", backend.calls)
	}
	if handle.closes != 1 {
		t.Fatalf("tool handle must be released exactly once, got %d", handle.closes)
	}
}

func TestAnalyzeWhitespaceInputSkipsExternals(t *testing.T) {
	for _, code := range []string{"", "   ", "\n\t \n"} {
		backend := &mockBackend{raw: backendReply}
		launcher := &mockLauncher{handle: &mockHandle{}}
		svc := newService(backend, launcher)

		_, err := svc.Analyze(context.Background(), domain.Request{Code: code})
		if got := domain.KindOf(err); got != domain.KindInvalidInput {
			t.Fatalf("code %q: want kind invalid_input, got %q (err=%v)", code, got, err)
		}
		if launcher.acquires != 0 {
			t.Fatalf("code %q: tool acquisition attempted on invalid input", code)
		}
		if backend.calls != 0 {
			t.Fatalf("code %q: backend invoked on invalid input", code)
		}
	}
}

func TestAnalyzeMissingCredentialShortCircuits(t *testing.T) {
	backend := &mockBackend{raw: backendReply}
	launcher := &mockLauncher{handle: &mockHandle{}}
	svc := newService(backend, launcher)
	svc.APIKey = ""

	_, err := svc.Analyze(context.Background(), domain.Request{Code: "x = 1"})
	if got := domain.KindOf(err); got != domain.KindConfiguration {
		t.Fatalf("want kind configuration, got %q (err=%v)", got, err)
	}
	if backend.calls != 0 {
		t.Fatalf("want 0 backend calls before credential check, got %d", backend.calls)
	}
	if launcher.acquires != 0 {
		t.Fatalf("want 0 acquisitions before credential check, got %d", launcher.acquires)
	}
}

func TestAnalyzeOversizeInput(t *testing.T) {
	svc := newService(&mockBackend{raw: backendReply}, &mockLauncher{handle: &mockHandle{}})
	svc.MaxCodeBytes = 16

	_, err := svc.Analyze(context.Background(), domain.Request{Code: strings.Repeat("a", 17)})
	if got := domain.KindOf(err); got != domain.KindInvalidInput {
		t.Fatalf("want kind invalid_input, got %q", got)
	}
}

func TestAnalyzeToolAcquisitionFailure(t *testing.T) {
	backend := &mockBackend{raw: backendReply}
	launcher := &mockLauncher{err: errors.New("spawn failed")}
	svc := newService(backend, launcher)

	_, err := svc.Analyze(context.Background(), domain.Request{Code: "x = 1"})
	if got := domain.KindOf(err); got != domain.KindToolAcquisition {
		t.Fatalf("want kind tool_acquisition, got %q", got)
	}
	if backend.calls != 0 {
		t.Fatalf("backend invoked despite acquisition failure")
	}
}

func TestAnalyzeBackendFailureReleasesHandle(t *testing.T) {
	handle := &mockHandle{}
	launcher := &mockLauncher{handle: handle}
	svc := newService(&mockBackend{err: errors.New("quota exceeded")}, launcher)

	_, err := svc.Analyze(context.Background(), domain.Request{Code: "x = 1"})
	if got := domain.KindOf(err); got != domain.KindBackendInvocation {
		t.Fatalf("want kind backend_invocation, got %q", got)
	}
	if handle.closes != 1 {
		t.Fatalf("tool handle must be released on backend failure, closes=%d", handle.closes)
	}
}

func TestAnalyzeMalformedReplyReleasesHandle(t *testing.T) {
	missingFix := `{"summary":"s","issues":[{"title":"t","description":"d",
		"code":"c","cvss_score":5.0,"severity":"medium"}]}`
	handle := &mockHandle{}
	launcher := &mockLauncher{handle: handle}
	svc := newService(&mockBackend{raw: missingFix}, launcher)

	rep, err := svc.Analyze(context.Background(), domain.Request{Code: "x = 1"})
	if rep != nil {
		t.Fatalf("no partial report on validation failure, got %+v", rep)
	}
	if got := domain.KindOf(err); got != domain.KindOutputValidation {
		t.Fatalf("want kind output_validation, got %q", got)
	}
	if handle.closes != 1 {
		t.Fatalf("tool handle must be released on validation failure, closes=%d", handle.closes)
	}
}

func TestAnalyzeRecordsHistory(t *testing.T) {
	store := &mockHistory{}
	svc := newService(&mockBackend{raw: backendReply}, &mockLauncher{handle: &mockHandle{}})
	svc.History = store

	if _, err := svc.Analyze(context.Background(), domain.Request{Code: "eval(input())"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("want 1 history record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.Status != hist.StatusSuccess {
		t.Fatalf("want status success, got %q", rec.Status)
	}
	if rec.Critical != 1 {
		t.Fatalf("want 1 critical in record, got %d", rec.Critical)
	}
	if rec.CodeBytes != len("eval(input())") {
		t.Fatalf("want code_bytes %d, got %d", len("eval(input())"), rec.CodeBytes)
	}
}

func TestAnalyzeHistoryFailureDoesNotAffectResult(t *testing.T) {
	svc := newService(&mockBackend{raw: backendReply}, &mockLauncher{handle: &mockHandle{}})
	svc.History = &mockHistory{err: errors.New("db down")}

	rep, err := svc.Analyze(context.Background(), domain.Request{Code: "x = 1"})
	if err != nil {
		t.Fatalf("history failure must not surface, got %v", err)
	}
	if rep == nil || len(rep.Issues) != 1 {
		t.Fatalf("report lost to best-effort recording: %+v", rep)
	}
}

func TestAnalyzeRecordsFailureKind(t *testing.T) {
	store := &mockHistory{}
	svc := newService(&mockBackend{err: errors.New("timeout")}, &mockLauncher{handle: &mockHandle{}})
	svc.History = store

	if _, err := svc.Analyze(context.Background(), domain.Request{Code: "x = 1"}); err == nil {
		t.Fatal("want error")
	}
	if len(store.records) != 1 {
		t.Fatalf("want failed run recorded, got %d records", len(store.records))
	}
	rec := store.records[0]
	if rec.Status != hist.StatusFailed || rec.FailKind != string(domain.KindBackendInvocation) {
		t.Fatalf("unexpected failure record: %+v", rec)
	}
}

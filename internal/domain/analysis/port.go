package analysis

import "context"

// AgentConfig binds one backend invocation: fixed role instructions,
// model reference, required output schema, and the tool handle owned
// by the current request. Everything except Tool is a process-wide
// constant.
type AgentConfig struct {
	Name         string
	Instructions string
	Model        string
	OutputSchema string
	Tool         ToolHandle
}

// Backend port (interface for the reasoning service)
type Backend interface {
	// Invoke performs one logical call and returns the raw structured
	// reply. The backend may run several tool-augmented turns against
	// agent.Tool before producing it; that is opaque to callers.
	Invoke(ctx context.Context, agent AgentConfig, prompt string) (string, error)
}

// ToolHandle is a single-use connection to the external
// static-analysis tool, owned by exactly one in-flight request.
// Close must be called exactly once on every exit path.
type ToolHandle interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// ToolLauncher port (interface for acquiring tool servers)
type ToolLauncher interface {
	Acquire(ctx context.Context) (ToolHandle, error)
}

// ReportArchive port (interface for optional report archival)
type ReportArchive interface {
	SaveReport(ctx context.Context, key string, report *Report) (string, error)
}

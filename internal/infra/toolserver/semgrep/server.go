package semgrep

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	domain "github.com/bryanwahyu/cybersec-analyzer/internal/domain/analysis"
)

const protocolVersion = "2024-11-05"

// Launcher starts one semgrep MCP server process per acquisition.
// Handles are single-use and never shared across requests; each
// request pays full setup/teardown cost.
type Launcher struct {
	Command string
	Args    []string
}

// NewLauncher uses cmd and args, defaulting to `uvx semgrep-mcp`.
func NewLauncher(cmd string, args ...string) *Launcher {
	if cmd == "" {
		cmd = "uvx"
		args = []string{"semgrep-mcp"}
	}
	return &Launcher{Command: cmd, Args: args}
}

// Acquire spawns the tool server and completes the initialize
// handshake. On any failure the process is torn down before returning;
// a half-initialized handle is never leaked.
func (l *Launcher) Acquire(ctx context.Context) (domain.ToolHandle, error) {
	cmd := exec.Command(l.Command, l.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Command, err)
	}

	h := &Handle{
		cmd:   cmd,
		stdin: stdin,
		out:   bufio.NewReader(stdout),
	}

	if err := h.initialize(ctx); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("initialize handshake: %w", err)
	}
	return h, nil
}

// Handle is one live stdio connection to a semgrep MCP server process.
type Handle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Reader

	mu     sync.Mutex
	seq    int64
	closed bool

	closeOnce sync.Once
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (h *Handle) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "cybersec-analyzer", "version": "1.0.0"},
		"capabilities":    map[string]any{},
	}
	if _, err := h.call(ctx, "initialize", params); err != nil {
		return err
	}
	return h.notify("notifications/initialized", nil)
}

// CallTool invokes one tool on the server and returns its textual
// result. A result flagged isError by the server is surfaced as an
// error here.
func (h *Handle) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := h.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	return parseToolResult(raw)
}

// Close is idempotent: it tears the process down exactly once and is
// safe to call on a handle whose handshake already failed.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		_ = h.stdin.Close()
		if h.cmd != nil && h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
			_ = h.cmd.Wait()
		}
	})
	return nil
}

func (h *Handle) notify(method string, params any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("tool server handle is closed")
	}
	return h.send(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// call performs one request/response round trip. Messages are
// newline-delimited JSON over the process pipes; responses for other
// ids and server-initiated notifications are skipped.
func (h *Handle) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("tool server handle is closed")
	}

	h.seq++
	id := h.seq
	if err := h.send(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	type readResult struct {
		raw json.RawMessage
		err error
	}
	ch := make(chan readResult, 1)
	go func() {
		raw, err := h.readReply(id)
		ch <- readResult{raw, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.raw, r.err
	}
}

func (h *Handle) send(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := h.stdin.Write(data); err != nil {
		return fmt.Errorf("write to tool server: %w", err)
	}
	return nil
}

func (h *Handle) readReply(id int64) (json.RawMessage, error) {
	for {
		line, err := h.out.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read from tool server: %w", err)
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode tool server reply: %w", err)
		}
		// notification or a reply to someone else
		if resp.Method != "" || resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("tool server error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func parseToolResult(raw json.RawMessage) (string, error) {
	var res toolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode tool result: %w", err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if c.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(c.Text)
	}
	if res.IsError {
		return "", fmt.Errorf("tool execution failed: %s", sb.String())
	}
	return sb.String(), nil
}

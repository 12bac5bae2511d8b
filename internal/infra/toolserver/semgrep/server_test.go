package semgrep

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func newTestHandle(serverOutput string) (*Handle, *bytes.Buffer) {
	in := &bytes.Buffer{}
	return &Handle{
		stdin: nopWriteCloser{in},
		out:   bufio.NewReader(strings.NewReader(serverOutput)),
	}, in
}

func TestCallMatchesResponseID(t *testing.T) {
	// a notification and a stale reply arrive before ours
	output := `{"jsonrpc":"2.0","method":"notifications/progress","params":{}}
{"jsonrpc":"2.0","id":99,"result":{}}
{"jsonrpc":"2.0","id":1,"result":{"ok":true}}
`
	h, in := newTestHandle(output)

	raw, err := h.call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("want matched result, got %s", raw)
	}

	// the request went out as one JSON line with our id
	var req rpcRequest
	if err := json.Unmarshal(bytes.TrimSpace(in.Bytes()), &req); err != nil {
		t.Fatalf("sent request is not valid JSON: %v", err)
	}
	if req.ID != 1 || req.Method != "tools/list" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestCallSurfacesServerError(t *testing.T) {
	h, _ := newTestHandle(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}` + "\n")

	_, err := h.call(context.Background(), "tools/call", nil)
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Fatalf("want server error surfaced, got %v", err)
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	h, _ := newTestHandle("")
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := h.call(context.Background(), "tools/list", nil); err == nil {
		t.Fatal("call on closed handle must fail")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h, _ := newTestHandle("")
	if err := h.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestParseToolResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "joins text items",
			raw:  `{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`,
			want: "a\nb",
		},
		{
			name: "skips non-text items",
			raw:  `{"content":[{"type":"image","text":"x"},{"type":"text","text":"findings"}]}`,
			want: "findings",
		},
		{
			name:    "isError becomes an error",
			raw:     `{"content":[{"type":"text","text":"scan crashed"}],"isError":true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseToolResult(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("want err=%v, got %v", tt.wantErr, err)
			}
			if err == nil && got != tt.want {
				t.Fatalf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewLauncherDefaults(t *testing.T) {
	l := NewLauncher("")
	if l.Command != "uvx" || len(l.Args) != 1 || l.Args[0] != "semgrep-mcp" {
		t.Fatalf("unexpected defaults: %+v", l)
	}

	custom := NewLauncher("semgrep", "mcp")
	if custom.Command != "semgrep" || len(custom.Args) != 1 || custom.Args[0] != "mcp" {
		t.Fatalf("custom command not kept: %+v", custom)
	}
}

package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/scriptvm/hostfunc"
)

// Host calls are framed on the guest's stderr as \x00SCRIPTVM:{json}\x00.
// The response is one JSON line on the guest's stdin.
const (
	protocolPrefix = "\x00SCRIPTVM:"
	protocolSuffix = "\x00"
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// protocolHandler sits on the guest's stderr. Plain bytes pass through to
// stderr; framed requests are dispatched to the registry.
type protocolHandler struct {
	ctx      context.Context
	registry *hostfunc.Registry
	stdin    io.Writer
	stderr   io.Writer
	buf      bytes.Buffer
	mu       sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdin, stderr io.Writer) *protocolHandler {
	return &protocolHandler{
		ctx:      ctx,
		registry: registry,
		stdin:    stdin,
		stderr:   stderr,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	content := p.buf.String()
	p.buf.Reset()

	for {
		idx := findMessage(content)
		if idx == -1 {
			// Hold back a tail that could still become a frame.
			keep := partialPrefix(content)
			p.passthrough(content[:len(content)-keep])
			p.buf.WriteString(content[len(content)-keep:])
			break
		}

		p.passthrough(content[:idx])

		payload, remaining, ok := extractMessage(content, idx)
		if !ok {
			p.buf.WriteString(content[idx:])
			break
		}
		content = remaining

		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			p.respond(callResponse{Error: "invalid call format"})
			continue
		}
		p.respond(p.handleCall(req))
	}

	return len(data), nil
}

// Flush writes out anything held back, e.g. an unterminated frame.
func (p *protocolHandler) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passthrough(p.buf.String())
	p.buf.Reset()
}

func (p *protocolHandler) passthrough(s string) {
	if s != "" {
		io.WriteString(p.stderr, s) //nolint:errcheck
	}
}

// respond must not block the guest's stderr write, which is what the guest
// is doing until it reads the reply.
func (p *protocolHandler) respond(resp callResponse) {
	data, _ := json.Marshal(resp)
	go p.stdin.Write(append(data, '\n')) //nolint:errcheck
}

func (p *protocolHandler) handleCall(req callRequest) callResponse {
	if p.registry == nil {
		return callResponse{Error: "unknown function: " + req.Fn}
	}
	fn, ok := p.registry.Get(req.Fn)
	if !ok {
		return callResponse{Error: "unknown function: " + req.Fn}
	}

	result, err := fn(p.ctx, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

func findMessage(content string) int {
	return strings.Index(content, protocolPrefix)
}

// extractMessage splits the frame starting at idx into its payload and the
// content after it. ok is false while the frame is incomplete.
func extractMessage(content string, idx int) (payload, remaining string, ok bool) {
	start := idx + len(protocolPrefix)
	end := strings.Index(content[start:], protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(protocolSuffix):], true
}

// partialPrefix returns the length of the longest suffix of content that is
// a proper prefix of protocolPrefix.
func partialPrefix(content string) int {
	for n := min(len(content), len(protocolPrefix)-1); n > 0; n-- {
		if strings.HasPrefix(protocolPrefix, content[len(content)-n:]) {
			return n
		}
	}
	return 0
}

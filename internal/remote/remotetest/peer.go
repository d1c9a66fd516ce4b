// Package remotetest provides an in-process Strudel MCP peer for tests.
//
// The peer is a real mcp-go server exposing the same seven tools as the
// Strudel MCP server. Sessions reach it through the mcp-go in-process client,
// so tests exercise the full JSON-RPC request path without a subprocess.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"strudelwatch/internal/remote"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Call records one tool invocation as the peer received it.
type Call struct {
	Tool    string
	Pattern string
}

var acknowledgements = map[string]string{
	remote.ToolInit:   "Strudel initialized",
	remote.ToolPlay:   "Playing",
	remote.ToolPause:  "Paused",
	remote.ToolUpdate: "Updated",
	remote.ToolStop:   "Stopped",
}

// Peer is a scriptable fake of the Strudel MCP server.
type Peer struct {
	srv *server.MCPServer

	mu        sync.Mutex
	pattern   string
	calls     []Call
	holds     map[string]chan struct{}
	failures  map[string]string
	transform func(string) string

	entered chan Call
}

// NewPeer builds a peer with all tools registered.
func NewPeer() *Peer {
	p := &Peer{
		srv:      server.NewMCPServer("strudel-mcp-fake", "0.0.0", server.WithToolCapabilities(false)),
		holds:    make(map[string]chan struct{}),
		failures: make(map[string]string),
		entered:  make(chan Call, 64),
	}

	p.srv.AddTool(mcp.NewTool(remote.ToolInit, mcp.WithDescription("Launch and initialize the Strudel browser")), p.handler(remote.ToolInit))
	p.srv.AddTool(mcp.NewTool(remote.ToolWrite,
		mcp.WithDescription("Replace the editor content with a pattern"),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Pattern source code")),
	), p.handler(remote.ToolWrite))
	p.srv.AddTool(mcp.NewTool(remote.ToolPlay, mcp.WithDescription("Start playback")), p.handler(remote.ToolPlay))
	p.srv.AddTool(mcp.NewTool(remote.ToolPause, mcp.WithDescription("Pause playback")), p.handler(remote.ToolPause))
	p.srv.AddTool(mcp.NewTool(remote.ToolUpdate, mcp.WithDescription("Re-evaluate the edited pattern")), p.handler(remote.ToolUpdate))
	p.srv.AddTool(mcp.NewTool(remote.ToolStop, mcp.WithDescription("Stop playback")), p.handler(remote.ToolStop))
	p.srv.AddTool(mcp.NewTool(remote.ToolGetPattern, mcp.WithDescription("Read back the editor content")), p.handler(remote.ToolGetPattern))

	return p
}

// Server exposes the underlying mcp-go server.
func (p *Peer) Server() *server.MCPServer {
	return p.srv
}

// Dialer connects sessions to this peer through the in-process transport.
func (p *Peer) Dialer() remote.Dialer {
	return func(context.Context) (*client.Client, error) {
		c, err := client.NewInProcessClient(p.srv)
		if err != nil {
			return nil, err
		}
		// The transport outlives the dial context.
		if err := c.Start(context.Background()); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// FailingDialer returns a dialer that always fails with err.
func FailingDialer(err error) remote.Dialer {
	return func(context.Context) (*client.Client, error) {
		return nil, err
	}
}

// Hold blocks every call to tool until release is called or the call's
// context ends. Calls are still recorded on entry.
func (p *Peer) Hold(tool string) (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.holds[tool] = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.holds[tool] == gate {
				delete(p.holds, tool)
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// Fail makes every call to tool return a tool error with msg.
func (p *Peer) Fail(tool, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[tool] = msg
}

// Recover clears a failure installed with Fail.
func (p *Peer) Recover(tool string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, tool)
}

// SetWriteTransform alters written patterns before they are stored, e.g. to
// mimic an editor that auto-closes brackets.
func (p *Peer) SetWriteTransform(fn func(string) string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transform = fn
}

// Entered delivers each call as it reaches the peer, before any hold.
func (p *Peer) Entered() <-chan Call {
	return p.entered
}

// Calls returns every call received so far, in arrival order.
func (p *Peer) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsTo filters Calls by tool name.
func (p *Peer) CallsTo(tool string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

// Pattern returns the stored editor content.
func (p *Peer) Pattern() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pattern
}

func (p *Peer) handler(tool string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := Call{Tool: tool, Pattern: req.GetString("pattern", "")}

		p.mu.Lock()
		p.calls = append(p.calls, call)
		gate := p.holds[tool]
		failure, failing := p.failures[tool]
		p.mu.Unlock()

		select {
		case p.entered <- call:
		default:
		}

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if failing {
			return mcp.NewToolResultError(failure), nil
		}

		switch tool {
		case remote.ToolWrite:
			p.mu.Lock()
			stored := call.Pattern
			if p.transform != nil {
				stored = p.transform(stored)
			}
			p.pattern = stored
			p.mu.Unlock()
			return mcp.NewToolResultText(fmt.Sprintf("Pattern written (%d chars)", len(call.Pattern))), nil
		case remote.ToolGetPattern:
			return mcp.NewToolResultText(p.Pattern()), nil
		default:
			return mcp.NewToolResultText(acknowledgements[tool]), nil
		}
	}
}

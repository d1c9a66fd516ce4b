// Package remote implements the client side of the Strudel MCP tool-call
// session using the mcp-go library.
//
// A Session owns one MCP channel to the peer process. Calls are serialized on
// that channel in program order; no retries happen here, callers decide.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"strudelwatch/internal/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed by the Strudel MCP server.
const (
	ToolInit       = "init"
	ToolWrite      = "write"
	ToolPlay       = "play"
	ToolPause      = "pause"
	ToolUpdate     = "update"
	ToolStop       = "stop"
	ToolGetPattern = "get_pattern"
)

// Dialer opens a started MCP client. The handshake is performed by Session.
type Dialer func(ctx context.Context) (*client.Client, error)

// StdioDialer launches command with args as a subprocess and speaks MCP over
// its stdin/stdout. env entries are added to the inherited environment.
func StdioDialer(command string, args []string, env []string) Dialer {
	return func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewStdioMCPClient(command, env, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", command, err)
		}
		return c, nil
	}
}

// Options configure a Session.
type Options struct {
	Dialer Dialer
	// Target describes the peer in log lines and errors, e.g. "node ./mcp-server/dist/index.js".
	Target        string
	ClientName    string
	ClientVersion string
	// CallTimeout bounds the handshake and every tool call. Zero means unbounded.
	CallTimeout time.Duration
	Logger      *logging.AppLogger
}

// Session is the single logical connection to the remote Strudel peer.
type Session struct {
	dial    Dialer
	target  string
	name    string
	version string
	timeout time.Duration
	logger  *logging.AppLogger

	// mu serializes tool calls on the channel.
	mu sync.Mutex

	stateMu sync.Mutex
	client  *client.Client

	initialized atomic.Bool
}

// NewSession creates a disconnected session.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	name := opts.ClientName
	if name == "" {
		name = "strudelplay-watcher"
	}
	version := opts.ClientVersion
	if version == "" {
		version = "1.0.0"
	}
	return &Session{
		dial:    opts.Dialer,
		target:  opts.Target,
		name:    name,
		version: version,
		timeout: opts.CallTimeout,
		logger:  logger,
	}
}

// Connect starts the peer and performs the MCP handshake. Connecting an
// already connected session is a no-op. Failures are returned as
// *ConnectionError.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current() != nil {
		return nil
	}
	if s.dial == nil {
		return &ConnectionError{Command: s.target, Err: errors.New("no dialer configured")}
	}

	s.logger.Info("Connecting to Strudel MCP server...", "command", s.target)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.dial(ctx)
	if err != nil {
		return &ConnectionError{Command: s.target, Err: err}
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: s.name, Version: s.version}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	result, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		return &ConnectionError{Command: s.target, Err: fmt.Errorf("handshake: %w", err)}
	}

	s.stateMu.Lock()
	s.client = c
	s.stateMu.Unlock()

	s.logger.Success("Connected to Strudel MCP server",
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
	)
	return nil
}

// Connected reports whether the channel is open.
func (s *Session) Connected() bool {
	return s.current() != nil
}

// Initialized reports whether the remote init tool has succeeded on this channel.
func (s *Session) Initialized() bool {
	return s.initialized.Load()
}

// InitializeRemote runs the remote init tool once per connection. Later calls
// return nil without contacting the peer.
func (s *Session) InitializeRemote(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized.Load() {
		return nil
	}
	return s.initLocked(ctx)
}

func (s *Session) initLocked(ctx context.Context) error {
	s.logger.Info("Initializing Strudel browser...")
	if _, err := s.callLocked(ctx, ToolInit, nil); err != nil {
		return err
	}
	s.initialized.Store(true)
	s.logger.Success("Strudel initialized")
	return nil
}

// WritePattern replaces the remote pattern with payload, initializing the
// remote first when needed. With autoPlay the pattern is evaluated through
// the play tool once the write is acknowledged.
func (s *Session) WritePattern(ctx context.Context, payload string, autoPlay bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized.Load() {
		s.logger.Warn("Strudel not initialized yet, initializing now...")
		if err := s.initLocked(ctx); err != nil {
			return err
		}
	}

	s.logger.Pattern("Updating pattern in Strudel...", "bytes", len(payload))
	if _, err := s.callLocked(ctx, ToolWrite, map[string]any{"pattern": payload}); err != nil {
		return err
	}

	if autoPlay {
		if _, err := s.callLocked(ctx, ToolPlay, nil); err != nil {
			return err
		}
	}

	s.logger.Success("Pattern updated", "autoplay", autoPlay)
	return nil
}

// Play starts playback of the current remote pattern.
func (s *Session) Play(ctx context.Context) (string, error) {
	return s.simple(ctx, ToolPlay, "Starting playback...", "Playback started")
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) (string, error) {
	return s.simple(ctx, ToolPause, "Pausing playback...", "Playback paused")
}

// Update re-evaluates the edited pattern while playing.
func (s *Session) Update(ctx context.Context) (string, error) {
	return s.simple(ctx, ToolUpdate, "Applying pattern update...", "Pattern update applied")
}

// Stop requests the remote to stop playback.
func (s *Session) Stop(ctx context.Context) (string, error) {
	return s.simple(ctx, ToolStop, "Stopping playback...", "Playback stopped")
}

// ReadBackPattern returns the pattern text currently held by the remote editor.
func (s *Session) ReadBackPattern(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.callLocked(ctx, ToolGetPattern, nil)
	if err != nil {
		return "", err
	}
	return ResultText(result), nil
}

func (s *Session) simple(ctx context.Context, op, starting, done string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info(starting)
	result, err := s.callLocked(ctx, op, nil)
	if err != nil {
		return "", err
	}
	s.logger.Success(done)
	return ResultText(result), nil
}

func (s *Session) callLocked(ctx context.Context, op string, args map[string]any) (*mcp.CallToolResult, error) {
	c := s.current()
	if c == nil {
		return nil, &RemoteCallError{Op: op, Err: ErrNotConnected}
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = op
	req.Params.Arguments = args

	start := time.Now()
	result, err := c.CallTool(ctx, req)
	s.logger.LogPerformance("remote "+op, start)
	if err != nil {
		return nil, &RemoteCallError{Op: op, Err: err}
	}
	if result.IsError {
		msg := ResultText(result)
		if msg == "" {
			msg = "tool reported an error"
		}
		return nil, &RemoteCallError{Op: op, Err: errors.New(msg)}
	}
	s.logger.Debug("Remote call acknowledged", "op", op, "ack", ResultText(result))
	return result, nil
}

// Close releases the channel. An in-flight call is awaited until ctx is done,
// after which the channel is closed underneath it. Closing a closed session is
// a no-op.
func (s *Session) Close(ctx context.Context) error {
	acquired := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		defer s.mu.Unlock()
		return s.release()
	case <-ctx.Done():
		s.logger.Warn("Remote call still in flight, forcing connection closed")
		go func() {
			<-acquired
			s.mu.Unlock()
		}()
		return s.release()
	}
}

func (s *Session) release() error {
	s.stateMu.Lock()
	c := s.client
	s.client = nil
	s.stateMu.Unlock()

	s.initialized.Store(false)
	if c == nil {
		return nil
	}

	s.logger.Info("Closing connection to Strudel MCP server...")
	if err := c.Close(); err != nil {
		return fmt.Errorf("failed to close remote session: %w", err)
	}
	s.logger.Success("Connection closed")
	return nil
}

func (s *Session) current() *client.Client {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.client
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ResultText joins the text content items of a tool result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

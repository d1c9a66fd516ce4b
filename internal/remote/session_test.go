package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"strudelwatch/internal/logging"
	"strudelwatch/internal/remote"
	"strudelwatch/internal/remote/remotetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, peer *remotetest.Peer, timeout time.Duration) (*remote.Session, *logging.SyncBuffer) {
	t.Helper()
	logger, buf := logging.NewTestLogger()
	s := remote.NewSession(remote.Options{
		Dialer:      peer.Dialer(),
		Target:      "in-process",
		CallTimeout: timeout,
		Logger:      logger,
	})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, buf
}

func connected(t *testing.T, peer *remotetest.Peer, timeout time.Duration) *remote.Session {
	t.Helper()
	s, _ := newSession(t, peer, timeout)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func tools(calls []remotetest.Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Tool)
	}
	return out
}

func TestConnect(t *testing.T) {
	peer := remotetest.NewPeer()
	s, buf := newSession(t, peer, time.Second)

	assert.False(t, s.Connected())
	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.Connected())
	assert.False(t, s.Initialized(), "MCP handshake must not run the init tool")
	assert.Empty(t, peer.Calls())
	assert.Contains(t, buf.String(), "Connected to Strudel MCP server")

	require.NoError(t, s.Connect(context.Background()), "second Connect is a no-op")
}

func TestConnect_DialFailure(t *testing.T) {
	logger, _ := logging.NewTestLogger()
	s := remote.NewSession(remote.Options{
		Dialer: remotetest.FailingDialer(errors.New("node: not found")),
		Target: "node ./missing.js",
		Logger: logger,
	})

	err := s.Connect(context.Background())
	require.Error(t, err)

	var connErr *remote.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "node ./missing.js", connErr.Command)
	assert.Contains(t, err.Error(), "node: not found")
	assert.False(t, s.Connected())
}

func TestCallsBeforeConnect(t *testing.T) {
	peer := remotetest.NewPeer()
	s, _ := newSession(t, peer, time.Second)

	err := s.WritePattern(context.Background(), `sound("bd")`, false)
	var callErr *remote.RemoteCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, remote.ToolInit, callErr.Op)
	assert.ErrorIs(t, err, remote.ErrNotConnected)

	_, err = s.Play(context.Background())
	assert.ErrorIs(t, err, remote.ErrNotConnected)
}

func TestInitializeRemote_Idempotent(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)

	require.NoError(t, s.InitializeRemote(context.Background()))
	require.NoError(t, s.InitializeRemote(context.Background()))

	assert.True(t, s.Initialized())
	assert.Len(t, peer.CallsTo(remote.ToolInit), 1)
}

func TestWritePattern_InitializesLazily(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)

	require.NoError(t, s.WritePattern(context.Background(), `note("c3")`, false))
	require.NoError(t, s.WritePattern(context.Background(), `note("c4")`, false))

	assert.Equal(t, []string{remote.ToolInit, remote.ToolWrite, remote.ToolWrite}, tools(peer.Calls()))
	assert.Equal(t, `note("c4")`, peer.Pattern())
}

func TestWritePattern_AutoPlay(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)
	require.NoError(t, s.InitializeRemote(context.Background()))

	require.NoError(t, s.WritePattern(context.Background(), `sound("bd sd")`, true))

	assert.Equal(t, []string{remote.ToolInit, remote.ToolWrite, remote.ToolPlay}, tools(peer.Calls()))
}

func TestWritePattern_InitFailureRetriedOnNextWrite(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)
	peer.Fail(remote.ToolInit, "browser failed to launch")

	err := s.WritePattern(context.Background(), `s("hh")`, false)
	var callErr *remote.RemoteCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, remote.ToolInit, callErr.Op)
	assert.Contains(t, err.Error(), "browser failed to launch")
	assert.Empty(t, peer.CallsTo(remote.ToolWrite), "write must not be sent before init succeeds")

	peer.Recover(remote.ToolInit)
	require.NoError(t, s.WritePattern(context.Background(), `s("hh")`, false))
	assert.Len(t, peer.CallsTo(remote.ToolInit), 2)
	assert.Equal(t, `s("hh")`, peer.Pattern())
}

func TestToolErrorBecomesRemoteCallError(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)
	peer.Fail(remote.ToolStop, "nothing playing")

	_, err := s.Stop(context.Background())
	var callErr *remote.RemoteCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, remote.ToolStop, callErr.Op)
	assert.Contains(t, callErr.Error(), "nothing playing")
}

func TestPlaybackControls(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)
	ctx := context.Background()

	ack, err := s.Play(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Playing", ack)

	ack, err = s.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Updated", ack)

	ack, err = s.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Paused", ack)

	ack, err = s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Stopped", ack)

	assert.Equal(t, []string{remote.ToolPlay, remote.ToolUpdate, remote.ToolPause, remote.ToolStop}, tools(peer.Calls()))
}

func TestReadBackPattern(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)
	ctx := context.Background()

	require.NoError(t, s.WritePattern(ctx, "stack(\n  s(\"bd\"),\n  s(\"hh\")\n)", false))

	got, err := s.ReadBackPattern(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stack(\n  s(\"bd\"),\n  s(\"hh\")\n)", got)
}

func TestWritesAreIssuedInProgramOrderWhileRemoteStalls(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, 0)
	ctx := context.Background()
	require.NoError(t, s.InitializeRemote(ctx))
	for len(peer.Entered()) > 0 {
		<-peer.Entered()
	}

	release := peer.Hold(remote.ToolWrite)
	defer release()

	first := make(chan error, 1)
	go func() { first <- s.WritePattern(ctx, `note("c3")`, false) }()

	select {
	case call := <-peer.Entered():
		require.Equal(t, remote.ToolWrite, call.Tool)
		require.Equal(t, `note("c3")`, call.Pattern)
	case <-time.After(2 * time.Second):
		t.Fatal("first write never reached the peer")
	}

	second := make(chan error, 1)
	go func() { second <- s.WritePattern(ctx, `note("c4")`, false) }()

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, peer.CallsTo(remote.ToolWrite), 1, "second write must wait for the first acknowledgement")

	release()
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	writes := peer.CallsTo(remote.ToolWrite)
	require.Len(t, writes, 2)
	assert.Equal(t, `note("c3")`, writes[0].Pattern)
	assert.Equal(t, `note("c4")`, writes[1].Pattern)
	assert.Equal(t, `note("c4")`, peer.Pattern())
}

func TestCallTimeout(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, 50*time.Millisecond)

	release := peer.Hold(remote.ToolPlay)
	defer release()

	start := time.Now()
	_, err := s.Play(context.Background())
	var callErr *remote.RemoteCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, remote.ToolPlay, callErr.Op)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClose(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, time.Second)
	require.NoError(t, s.InitializeRemote(context.Background()))

	require.NoError(t, s.Close(context.Background()))
	assert.False(t, s.Connected())
	assert.False(t, s.Initialized())

	require.NoError(t, s.Close(context.Background()), "closing twice is a no-op")

	_, err := s.Play(context.Background())
	assert.ErrorIs(t, err, remote.ErrNotConnected)
}

func TestClose_ForcesAfterBoundedWait(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, 0)
	require.NoError(t, s.InitializeRemote(context.Background()))

	release := peer.Hold(remote.ToolWrite)
	defer release()

	inFlight := make(chan error, 1)
	go func() { inFlight <- s.WritePattern(context.Background(), `s("bd")`, false) }()
	require.Eventually(t, func() bool { return len(peer.CallsTo(remote.ToolWrite)) == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_ = s.Close(ctx)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, s.Connected())

	release()
	select {
	case <-inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call did not finish after release")
	}
}

func TestClose_AwaitsInFlightCall(t *testing.T) {
	peer := remotetest.NewPeer()
	s := connected(t, peer, 0)
	require.NoError(t, s.InitializeRemote(context.Background()))

	release := peer.Hold(remote.ToolWrite)
	inFlight := make(chan error, 1)
	go func() { inFlight <- s.WritePattern(context.Background(), `s("cp")`, false) }()
	require.Eventually(t, func() bool { return len(peer.CallsTo(remote.ToolWrite)) == 1 }, 2*time.Second, 10*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	require.NoError(t, <-inFlight, "the in-flight write completes before the channel closes")
	assert.Equal(t, `s("cp")`, peer.Pattern())
}

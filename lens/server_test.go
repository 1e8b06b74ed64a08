package lens

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()

	cfg.Host = "127.0.0.1"
	cfg.Logger = zerolog.Nop()
	if cfg.Styler == nil {
		cfg.Styler = PlainStyler()
	}
	srv, err := StartServer(cfg)
	require.NoError(t, err)
	return srv
}

func stopTestServer(t *testing.T, srv *Server) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}

func testClient(t *testing.T, srv *Server) *Client {
	t.Helper()

	client, err := NewClient(ClientConfig{
		Host:           "127.0.0.1",
		Port:           srv.Port(),
		MaxElapsedTime: 200 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitForPackets(t *testing.T, srv *Server, count uint64) {
	t.Helper()

	assert.Eventually(t, func() bool {
		return srv.Stats().Snapshot().TotalPackets() >= count
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCollectorRoundTrip(t *testing.T) {
	t.Parallel()

	out := NewLockedBuffer()
	store := NewMemStorage()
	srv := startTestServer(t, ServerConfig{Output: out, Storage: store, Session: "s1", Plain: true})

	cfg := DefaultFormatterConfig()
	cfg.TraceLength = 0
	dbg := NewDebugger(plainDumper(cfg), testClient(t, srv))

	count := 3
	text, err := dbg.Dump(count)
	require.NoError(t, err)
	assert.Equal(t, "count: 3", text)
	text, err = dbg.CallValue("Read", []any{1}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Read(1): 2", text)
	require.NoError(t, dbg.Send(PacketError, "boom"))
	_, err = dbg.Table([]point{{X: 1, Y: 2}})
	require.NoError(t, err)

	waitForPackets(t, srv, 4)
	stopTestServer(t, srv)

	live := out.String()
	dumpIdx := strings.Index(live, "dump pid ")
	callIdx := strings.Index(live, "callvalue pid ")
	errIdx := strings.Index(live, "error pid ")
	tableIdx := strings.Index(live, "table pid ")
	require.True(t, dumpIdx >= 0 && callIdx >= 0 && errIdx >= 0 && tableIdx >= 0, live)
	assert.True(t, dumpIdx < callIdx && callIdx < errIdx && errIdx < tableIdx, "arrival order:\n%s", live)
	assert.Contains(t, live, "server_test.go:")
	assert.Contains(t, live, "\ncount: 3\n")
	assert.Contains(t, live, "\nboom\n")
	assert.Contains(t, live, "| X | Y |")

	snap := srv.Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.Packets["dump"])
	assert.Equal(t, uint64(1), snap.Packets["table"])
	assert.Equal(t, uint64(1), snap.Connections)
	assert.Zero(t, snap.DecodeErrors)

	t.Run("replay", func(t *testing.T) {
		var replayed bytes.Buffer
		n, err := Replay(store, "s1", &replayed, PlainStyler(), true, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, live, replayed.String())

		sessions, err := store.Sessions()
		require.NoError(t, err)
		assert.Equal(t, []string{"s1"}, sessions)
	})
	t.Run("stop_twice", func(t *testing.T) {
		assert.Error(t, srv.Stop(context.Background()))
	})
}

func TestCollectorSessionContinues(t *testing.T) {
	t.Parallel()

	store := NewMemStorage()
	for round := 0; round < 2; round++ {
		srv := startTestServer(t, ServerConfig{Storage: store, Session: "s"})
		client := testClient(t, srv)
		for i := 0; i < 2; i++ {
			require.NoError(t, client.Send(context.Background(), &Packet{Kind: PacketDump, Text: "round"}))
		}
		waitForPackets(t, srv, 2)
		stopTestServer(t, srv)
	}

	seqs, err := store.Sequences("s")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)

	var out bytes.Buffer
	n, err := Replay(store, "s", &out, PlainStyler(), true, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCollectorPacketOrderPerClient(t *testing.T) {
	t.Parallel()

	out := NewLockedBuffer()
	srv := startTestServer(t, ServerConfig{Output: out, Plain: true})
	client := testClient(t, srv)

	const total = 50
	for i := 0; i < total; i++ {
		require.NoError(t, client.Send(context.Background(), &Packet{Kind: PacketTrace, Text: "p" + string(rune('A'+i%26))}))
	}
	waitForPackets(t, srv, total)
	stopTestServer(t, srv)

	var texts []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "p") {
			texts = append(texts, line)
		}
	}
	require.Len(t, texts, total)
	for i, text := range texts {
		assert.Equal(t, "p"+string(rune('A'+i%26)), text)
	}
}

func TestCollectorMalformedFrame(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, ServerConfig{})
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	_, err = conn.Write([]byte{0x80, 0x01, 0x00})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return srv.Stats().Snapshot().DecodeErrors == 1
	}, 5*time.Second, 10*time.Millisecond)
	_ = conn.Close()

	// the collector keeps accepting after dropping a connection
	client := testClient(t, srv)
	require.NoError(t, client.Send(context.Background(), &Packet{Kind: PacketDump, Text: "ok"}))
	waitForPackets(t, srv, 1)
	stopTestServer(t, srv)
}

func TestClientSendFailures(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, ServerConfig{})
	client := testClient(t, srv)
	require.NoError(t, client.Send(context.Background(), &Packet{Kind: PacketDump, Text: "first"}))
	waitForPackets(t, srv, 1)
	stopTestServer(t, srv)

	t.Run("collector_gone", func(t *testing.T) {
		var err error
		// the first write after the collector closed may still succeed locally
		for i := 0; i < 3 && err == nil; i++ {
			err = client.Send(context.Background(), &Packet{Kind: PacketDump, Text: "lost"})
		}
		assert.Error(t, err)
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, client.Send(ctx, &Packet{Kind: PacketDump, Text: "lost"}))
	})
	t.Run("closed", func(t *testing.T) {
		require.NoError(t, client.Close())
		assert.ErrorIs(t, client.Send(context.Background(), &Packet{Kind: PacketDump}), ErrClientClosed)
	})
}

func TestClientStampsPackets(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, ServerConfig{})
	client := testClient(t, srv)
	defer stopTestServer(t, srv)

	first := &Packet{Kind: PacketDump}
	second := &Packet{Kind: PacketDump}
	require.NoError(t, client.Send(context.Background(), first))
	require.NoError(t, client.Send(context.Background(), second))

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.NotZero(t, first.PID)
	assert.NotZero(t, first.TimeNS)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	waitForPackets(t, srv, 2)
}

func TestDebuggerSendUnknownKind(t *testing.T) {
	t.Parallel()

	client, err := NewClient(ClientConfig{Port: 1, Logger: zerolog.Nop()})
	require.NoError(t, err)
	dbg := NewDebugger(plainDumper(DefaultFormatterConfig()), client)
	assert.ErrorIs(t, dbg.Send(PacketKind(99), "x"), ErrUnknownPacketKind)
}

func TestClientConfigEnvPort(t *testing.T) {
	t.Run("override", func(t *testing.T) {
		t.Setenv(EnvPort, "9123")
		client, err := NewClient(ClientConfig{Port: 7000})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9123", client.Addr())
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv(EnvPort, "port")
		_, err := NewClient(ClientConfig{})
		assert.Error(t, err)
	})
	t.Run("default", func(t *testing.T) {
		t.Setenv(EnvPort, "")
		client, err := NewClient(ClientConfig{})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8448", client.Addr())
	})
}

func TestWritePacketText(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local).UnixNano()
	p := &Packet{
		Kind:   PacketError,
		PID:    7,
		TimeNS: ts,
		Origin: "a.go:3",
		Text:   NewStyler(nil).Style("l1", RoleError) + "\nl2\nl3",
	}

	t.Run("limited_plain", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePacketText(&buf, PlainStyler(), p, true, 2))
		assert.Equal(t, "[10:30:00.000] error pid 7 a.go:3\nl1\nl2\n... 1 more lines\n", buf.String())
	})
	t.Run("styled", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePacketText(&buf, NewStyler(nil), p, false, 0))
		assert.Contains(t, buf.String(), p.Text)
		assert.Equal(t, "[10:30:00.000] error pid 7 a.go:3\nl1\nl2\nl3\n", StripStyles(buf.String()))
	})
	t.Run("no_text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePacketText(&buf, PlainStyler(), &Packet{Kind: PacketTrace, TimeNS: ts}, true, 0))
		assert.Equal(t, "[10:30:00.000] trace pid 0\n", buf.String())
	})
}

package lens

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectorConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		CacheMB:   64,
		Formatter: DefaultFormatterConfig(),
	}
}

func seedSessions(t *testing.T, dir string, sessions map[string][]string) {
	t.Helper()

	store, err := NewBadgerStorage(dir, BadgerOptions{MaxMemMB: 64, Compression: options.ZSTD, Persistent: true})
	require.NoError(t, err)
	defer store.Close()
	for session, texts := range sessions {
		for i, text := range texts {
			seq := uint64(i + 1)
			payload, err := encodePayload(&Packet{Kind: PacketDump, PID: 9, TimeNS: 1, Seq: seq, Text: text})
			require.NoError(t, err)
			require.NoError(t, store.SaveBlob(session, seq, payload))
		}
	}
}

func TestRunCollectorWritesReports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := collectorConfig()
	cfg.StatsFile = filepath.Join(dir, "stats.json")
	cfg.ReportFile = filepath.Join(dir, "report.svg")
	cfg.LogFile = filepath.Join(dir, "collector.log")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stop right after binding
	var stdout bytes.Buffer
	require.NoError(t, RunCollector(ctx, cfg, &stdout, zerolog.Nop()))

	snap, err := LoadStatsSnapshot(cfg.StatsFile)
	require.NoError(t, err)
	assert.Zero(t, snap.TotalPackets())
	report, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	assert.Contains(t, string(report), "No Packets Received")
	assert.FileExists(t, cfg.LogFile)
}

func TestRunCollectorReplay(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "store")
	seedSessions(t, dir, map[string][]string{
		"20240101-090000": {"old session"},
		"20240102-090000": {"first", "second"},
	})

	t.Run("latest", func(t *testing.T) {
		cfg := collectorConfig()
		cfg.StorageDir = dir
		cfg.Replay = true
		logPath := filepath.Join(t.TempDir(), "replay.log")
		cfg.LogFile = logPath

		var stdout bytes.Buffer
		require.NoError(t, RunCollector(context.Background(), cfg, &stdout, zerolog.Nop()))
		out := stdout.String()
		assert.Contains(t, out, "\nfirst\n")
		assert.Contains(t, out, "\nsecond\n")
		assert.NotContains(t, out, "old session")
		assert.Less(t, bytes.Index(stdout.Bytes(), []byte("first")), bytes.Index(stdout.Bytes(), []byte("second")))

		logged, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Equal(t, out, string(logged))
	})
	t.Run("named", func(t *testing.T) {
		cfg := collectorConfig()
		cfg.StorageDir = dir
		cfg.Replay = true
		cfg.Session = "20240101-090000"
		cfg.MaxLines = 1

		var stdout bytes.Buffer
		require.NoError(t, RunCollector(context.Background(), cfg, &stdout, zerolog.Nop()))
		assert.Contains(t, stdout.String(), "old session")
		assert.NotContains(t, stdout.String(), "first")
	})
}

func TestRunCollectorErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid_config", func(t *testing.T) {
		cfg := collectorConfig()
		cfg.Port = -1
		assert.Error(t, RunCollector(context.Background(), cfg, &bytes.Buffer{}, zerolog.Nop()))
	})
	t.Run("empty_store", func(t *testing.T) {
		cfg := collectorConfig()
		cfg.StorageDir = filepath.Join(t.TempDir(), "empty")
		cfg.Replay = true
		err := RunCollector(context.Background(), cfg, &bytes.Buffer{}, zerolog.Nop())
		assert.ErrorContains(t, err, "no stored sessions")
	})
	t.Run("bad_report_type", func(t *testing.T) {
		cfg := collectorConfig()
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.bmp")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, RunCollector(ctx, cfg, &bytes.Buffer{}, zerolog.Nop()))
	})
	t.Run("port_in_use", func(t *testing.T) {
		srv := startTestServer(t, ServerConfig{})
		defer stopTestServer(t, srv)
		cfg := collectorConfig()
		cfg.Port = srv.Port()
		assert.Error(t, RunCollector(context.Background(), cfg, &bytes.Buffer{}, zerolog.Nop()))
	})
}

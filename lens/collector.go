package lens

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"
)

const collectorStopTimeout = 10 * time.Second

// RunCollector runs the collector until ctx is done, or replays a stored session when cfg.Replay is set.
// Stats and the chart report are written once the collector stops.
func RunCollector(ctx context.Context, cfg *Config, stdout io.Writer, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var logFile *os.File
	if cfg.LogFile != "" {
		logFile, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file failed: %w", err)
		}
	}
	var out io.WriteCloser
	if logFile != nil {
		out = TeeWriter(stdout, logFile)
	} else {
		out = TeeWriter(stdout)
	}
	defer func() { _ = out.Close() }()

	styler := NewStyler(nil)
	if cfg.Replay {
		session := cfg.Session
		if session == "" {
			if session, err = latestSession(store); err != nil {
				return err
			}
		}
		n, err := Replay(store, session, out, styler, !cfg.Color, cfg.MaxLines)
		logger.Info().Str("session", session).Int("packets", n).Msg("replay finished")
		return err
	}

	session := cfg.Session
	if session == "" {
		session = time.Now().Format(SessionNameLayout)
	}
	srv, err := StartServer(ServerConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Output:   out,
		Storage:  store,
		Session:  session,
		Styler:   styler,
		Plain:    !cfg.Color,
		MaxLines: cfg.MaxLines,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), collectorStopTimeout)
	defer cancel()
	stopErr := srv.Stop(stopCtx)
	snap := srv.Stats().Snapshot()
	logger.Info().
		Uint64("packets", snap.TotalPackets()).
		Uint64("connections", snap.Connections).
		Uint64("decode_errors", snap.DecodeErrors).
		Msg("session summary")
	return errors.Join(stopErr, snap.WriteToFile(cfg.StatsFile), WriteStatsChart(cfg.ReportFile, snap))
}

// openStorage opens the persistent badger store when a directory is configured, otherwise packets are
// only kept in memory for the process lifetime.
func openStorage(cfg *Config) (Storage, error) {
	if cfg.StorageDir == "" {
		return NewMemStorage(), nil
	}
	store, err := NewBadgerStorage(cfg.StorageDir, BadgerOptions{
		MaxMemMB:    cfg.CacheMB,
		Compression: options.ZSTD,
		Persistent:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage failed: %w", err)
	}
	return store, nil
}

// latestSession picks the last session in key order, default session names sort by start time.
func latestSession(store Storage) (string, error) {
	sessions, err := store.Sessions()
	if err != nil {
		return "", err
	} else if len(sessions) == 0 {
		return "", errors.New("no stored sessions to replay")
	}
	return sessions[len(sessions)-1], nil
}

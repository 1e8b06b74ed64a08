package lens

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SessionNameLayout names sessions by their start time, so names sort chronologically.
const SessionNameLayout = "20060102-150405"

const (
	defaultMaxConnections = 64
	connReadBufferSize    = 64 * 1024
)

// ServerConfig configures a collector Server.
type ServerConfig struct {
	Host string
	// Port to listen on, zero picks a free port.
	Port int
	// Output receives the header and text of every packet.
	Output io.Writer
	// Storage persists packets under Session when set.
	Storage Storage
	// Session defaults to the start time formatted with SessionNameLayout.
	Session string
	// Stats is updated for every packet, one is created when nil.
	Stats  *Stats
	Styler *Styler
	// Plain strips the styles producers embedded in packet text.
	Plain bool
	// MaxLines limits the lines printed per packet, zero prints everything.
	MaxLines int
	// MaxConnections bounds concurrently served connections, further clients wait in the accept backlog.
	MaxConnections int
	Logger         zerolog.Logger
}

// Server is the collector: it accepts client connections and prints, counts and stores every packet.
type Server struct {
	cfg        ServerConfig
	log        zerolog.Logger
	listener   net.Listener
	store      Storage
	stats      *Stats
	seq        atomic.Uint64
	outMu      sync.Mutex
	group      *errgroup.Group
	acceptDone chan struct{}
	stopping   atomic.Bool
	connMu     sync.Mutex
	conns      map[net.Conn]struct{}
	errMu      sync.Mutex
	errs       []error
}

// StartServer binds the listener and serves connections in the background. It returns once the
// listener is bound, so Port is valid.
func StartServer(cfg ServerConfig) (*Server, error) {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Styler == nil {
		cfg.Styler = NewStyler(nil)
	}
	if cfg.Plain {
		cfg.Styler = PlainStyler()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Session == "" {
		cfg.Session = time.Now().Format(SessionNameLayout)
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("collector listen failed: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		log:        cfg.Logger.With().Str("src", "collector").Logger(),
		listener:   listener,
		stats:      cfg.Stats,
		group:      &errgroup.Group{},
		acceptDone: make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
	if cfg.Storage != nil {
		s.store = cfg.Storage
		if seqs, err := s.store.Sequences(cfg.Session); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("read session failed: %w", err)
		} else if len(seqs) > 0 {
			s.seq.Store(seqs[len(seqs)-1]) // continue an existing session
		}
	}
	s.group.SetLimit(cfg.MaxConnections)
	go s.acceptLoop()

	s.log.Info().Str("addr", listener.Addr().String()).Str("session", cfg.Session).Msg("collector started")
	return s, nil
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stats returns the live counters.
func (s *Server) Stats() *Stats {
	return s.stats
}

func (s *Server) recordErr(err error) {
	s.log.Error().Err(err).Msg("collector error")
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.stopping.Load() && !errors.Is(err, net.ErrClosed) {
				s.recordErr(fmt.Errorf("accept failed: %w", err))
			}
			return
		}
		if !s.trackConn(conn) {
			_ = conn.Close()
			return
		}
		s.group.Go(func() error {
			defer s.untrackConn(conn)
			s.serveConn(conn)
			return nil
		})
	}
}

func (s *Server) trackConn(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.stopping.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, conn)
	_ = conn.Close()
}

// serveConn reads frames until the client disconnects. A malformed frame drops the connection, the
// client reconnects and starts a fresh stream.
func (s *Server) serveConn(conn net.Conn) {
	s.stats.RecordConnection()
	connLog := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	connLog.Debug().Msg("client connected")
	r := bufio.NewReaderSize(conn, connReadBufferSize)
	for {
		p, err := ReadPacket(r)
		if errors.Is(err, io.EOF) {
			connLog.Debug().Msg("client disconnected")
			return
		} else if err != nil {
			if !s.stopping.Load() {
				s.stats.RecordDecodeError()
				connLog.Warn().Err(err).Msg("dropping connection")
			}
			return
		}
		s.handlePacket(p)
	}
}

func (s *Server) handlePacket(p *Packet) {
	s.stats.RecordPacket(p)
	if s.store != nil {
		payload, err := encodePayload(p)
		if err == nil {
			err = s.store.SaveBlob(s.cfg.Session, s.seq.Add(1), payload)
		}
		if err != nil {
			s.recordErr(fmt.Errorf("store packet %s failed: %w", p.ID, err))
		}
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := writePacketText(s.cfg.Output, s.cfg.Styler, p, s.cfg.Plain, s.cfg.MaxLines); err != nil {
		s.recordErr(fmt.Errorf("write output failed: %w", err))
	}
}

// Stop closes the listener and all connections, then waits for the handlers until ctx is done. Errors
// recorded while serving are joined into the result.
func (s *Server) Stop(ctx context.Context) error {
	if !s.stopping.CompareAndSwap(false, true) {
		return errors.New("collector already stopped")
	}
	closeErr := s.listener.Close()
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		<-s.acceptDone
		_ = s.group.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("collector stop: %w", ctx.Err())
	}
	s.log.Info().Uint64("packets", s.stats.Snapshot().TotalPackets()).Msg("collector stopped")

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return errors.Join(append([]error{closeErr, waitErr}, s.errs...)...)
}

// writePacketText writes the header line of a packet followed by its text.
func writePacketText(w io.Writer, styler *Styler, p *Packet, plain bool, maxLines int) error {
	var sb strings.Builder
	ts := time.Unix(0, p.TimeNS).Format("15:04:05.000")
	sb.WriteString(styler.Style("["+ts+"]", RoleTime))
	sb.WriteByte(' ')
	sb.WriteString(styler.Style(p.Kind.String(), RoleHeader))
	sb.WriteByte(' ')
	sb.WriteString(styler.Style("pid "+strconv.Itoa(p.PID), RoleInfo))
	if p.Origin != "" {
		sb.WriteByte(' ')
		sb.WriteString(styler.Style(p.Origin, RoleOrigin))
	}
	sb.WriteByte('\n')
	text := p.Text
	if plain {
		text = StripStyles(text)
	}
	if text != "" {
		sb.WriteString(limitStringLines(text, maxLines, true))
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Replay prints the stored packets of a session in arrival order.
func Replay(store Storage, session string, w io.Writer, styler *Styler, plain bool, maxLines int) (int, error) {
	if plain {
		styler = PlainStyler()
	} else if styler == nil {
		styler = NewStyler(nil)
	}
	seqs, err := store.Sequences(session)
	if err != nil {
		return 0, fmt.Errorf("list session failed: %w", err)
	}

	packets := make([]*Packet, len(seqs))
	eg := ErrGroupLimitCPU()
	for i, seq := range seqs {
		eg.Go(func() error {
			payload, ok, err := store.LoadBlob(session, seq)
			if err != nil {
				return err
			} else if !ok {
				return nil // deleted while replaying
			}
			packets[i], err = DecodePacketPayload(payload)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	var printed int
	for _, p := range packets {
		if p == nil {
			continue
		} else if err := writePacketText(w, styler, p, plain, maxLines); err != nil {
			return printed, err
		}
		printed++
	}
	return printed, nil
}

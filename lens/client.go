package lens

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// EnvPort overrides the collector port used by clients.
const EnvPort = "DUMPLENS_PORT"

var ErrClientClosed = errors.New("client closed")

// ClientConfig configures a Client. Zero values select the defaults.
type ClientConfig struct {
	Host string
	// Port of the collector, EnvPort takes precedence when set.
	Port int
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// WriteTimeout bounds writing a single frame.
	WriteTimeout time.Duration
	// MaxElapsedTime bounds the retries of a single send.
	MaxElapsedTime time.Duration
	Logger         zerolog.Logger
}

func (c ClientConfig) withDefaults() (ClientConfig, error) {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if portOverride := os.Getenv(EnvPort); portOverride != "" {
		port, err := strconv.Atoi(portOverride)
		if err != nil || port <= 0 || port > 65535 {
			return c, fmt.Errorf("invalid port in %s: %q", EnvPort, portOverride)
		}
		c.Port = port
	} else if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = 2 * time.Second
	}
	return c, nil
}

// Client sends packets to a collector over TCP. The connection is opened on the first send and reopened
// after failures. Sends are serialized so packets from one client arrive in order.
type Client struct {
	cfg    ClientConfig
	addr   string
	log    zerolog.Logger
	pid    int
	seq    atomic.Uint64
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func NewClient(cfg ClientConfig) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		log:  cfg.Logger.With().Str("src", "client").Logger(),
		pid:  os.Getpid(),
	}, nil
}

// Addr returns the collector address.
func (c *Client) Addr() string {
	return c.addr
}

// Send stamps p with its id, sequence, process and time when unset, then writes it, retrying with
// exponential backoff until MaxElapsedTime or ctx is done.
func (c *Client) Send(ctx context.Context, p *Packet) error {
	if p.Seq == 0 {
		p.Seq = c.seq.Add(1)
	}
	if p.PID == 0 {
		p.PID = c.pid
	}
	if p.TimeNS == 0 {
		p.TimeNS = time.Now().UnixNano()
	}
	if p.ID == "" {
		p.ID = packetID(p.PID, p.TimeNS, p.Seq)
	}
	frame, err := EncodePacket(p)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(c.cfg.MaxElapsedTime),
	)
	err = backoff.RetryNotify(func() error {
		return c.writeFrame(ctx, frame)
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", d).Str("addr", c.addr).Msg("send failed")
	})
	if err != nil {
		c.log.Warn().Err(err).Str("kind", p.Kind.String()).Msg("packet dropped")
		return fmt.Errorf("send to %s failed: %w", c.addr, err)
	}
	return nil
}

// writeFrame writes under c.mu, dialing when there is no connection. A failed write drops the connection
// so the next attempt starts a fresh stream.
func (c *Client) writeFrame(ctx context.Context, frame []byte) error {
	if c.conn == nil {
		dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return err
		}
		c.conn = conn
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Close closes the connection, later sends fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Debugger renders values locally and streams the text to a collector. Rendering never depends on the
// transport: render errors are returned before anything is sent, and send errors are returned together
// with the rendered text.
type Debugger struct {
	dumper *Dumper
	client *Client
}

func NewDebugger(d *Dumper, c *Client) *Debugger {
	return &Debugger{dumper: d, client: c}
}

func (g *Debugger) Dumper() *Dumper {
	return g.dumper
}

// Dump renders v the way Dumper.Dump does and sends it.
func (g *Debugger) Dump(v any) (string, error) {
	text, stack, err := g.dumper.dump(v, g.dumper.cfg, 1)
	if err != nil {
		return "", err
	}
	return text, g.send(PacketDump, text, stack)
}

// Trace sends the current call trace.
func (g *Debugger) Trace() (string, error) {
	stack := CaptureCallstack(1, g.dumper.locator)
	text := g.dumper.RenderTrace(stack)
	return text, g.send(PacketTrace, text, stack)
}

// Table renders rows as a table and sends it.
func (g *Debugger) Table(rows any) (string, error) {
	text, err := g.dumper.RenderTable(rows)
	if err != nil {
		return "", err
	}
	return text, g.send(PacketTable, text, CaptureCallstack(1, g.dumper.locator))
}

// CallValue renders one call and sends it.
func (g *Debugger) CallValue(name string, params []any, ret any) (string, error) {
	text, err := g.dumper.RenderCallValue(name, params, ret)
	if err != nil {
		return "", err
	}
	return text, g.send(PacketCallValue, text, CaptureCallstack(1, g.dumper.locator))
}

// Send sends pre-rendered text.
func (g *Debugger) Send(kind PacketKind, text string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownPacketKind, kind)
	}
	return g.send(kind, text, CaptureCallstack(1, g.dumper.locator))
}

func (g *Debugger) send(kind PacketKind, text string, stack Callstack) error {
	p := &Packet{Kind: kind, Text: text, Origin: originOf(stack), Trace: PacketFrames(stack)}
	return g.client.Send(context.Background(), p)
}

// originOf is the file:line of the innermost frame.
func originOf(stack Callstack) string {
	if len(stack) == 0 || stack[0].File == "" {
		return ""
	}
	return stack[0].Location()
}

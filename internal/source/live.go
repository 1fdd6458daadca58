package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit int64 = 1 << 20

// LiveConfig configures a websocket source.
type LiveConfig struct {
	URL         string
	ReadLimit   int64
	DialTimeout time.Duration
	Header      http.Header
	Logger      *slog.Logger
}

// Live is a Source backed by a websocket connection to the simulation server.
type Live struct {
	cfg    LiveConfig
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closing bool
	gen     uint64
}

// NewLive creates a websocket source. It does not dial until Open.
func NewLive(cfg LiveConfig) *Live {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Live{cfg: cfg, logger: logger}
}

// Name implements Source.
func (l *Live) Name() string { return "live" }

// Open dials in the background and starts the read loop.
func (l *Live) Open(ctx context.Context, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return ErrAlreadyOpen
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.closing = false
	l.gen++
	go l.run(runCtx, l.gen, h)
	return nil
}

func (l *Live) run(ctx context.Context, gen uint64, h Handler) {
	dialCtx, cancelDial := context.WithTimeout(ctx, l.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, l.cfg.URL, &websocket.DialOptions{HTTPHeader: l.cfg.Header})
	cancelDial()
	if err != nil {
		stopped := l.isClosing() || ctx.Err() != nil
		l.finish(gen, nil)
		if stopped {
			h.OnClose(nil)
			return
		}
		err = fmt.Errorf("dial %s: %w", l.cfg.URL, err)
		h.OnError(err)
		h.OnClose(err)
		return
	}
	conn.SetReadLimit(l.cfg.ReadLimit)

	l.mu.Lock()
	if l.gen == gen {
		l.conn = conn
	}
	l.mu.Unlock()

	l.logger.Info("Live source connected", "url", l.cfg.URL)
	h.OnOpen()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			stopped := l.isClosing() || ctx.Err() != nil
			l.finish(gen, conn)
			if stopped || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				h.OnClose(nil)
				return
			}
			h.OnError(err)
			h.OnClose(err)
			return
		}
		if typ != websocket.MessageText {
			l.logger.Debug("Skipping non-text frame", "type", typ.String(), "bytes", len(data))
			continue
		}
		h.OnMessage(data)
	}
}

func (l *Live) isClosing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}

// finish releases the connection once the read loop has ended. It cancels
// the run context, so callers must inspect ctx before calling it.
func (l *Live) finish(gen uint64, conn *websocket.Conn) {
	l.mu.Lock()
	if l.gen == gen {
		l.conn = nil
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
	}
	l.mu.Unlock()
	if conn != nil {
		_ = conn.CloseNow()
	}
}

// Send implements Source.
func (l *Live) Send(ctx context.Context, msg []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close performs a normal websocket close. The read loop then reports OnClose.
func (l *Live) Close() error {
	l.mu.Lock()
	conn, cancel := l.conn, l.cancel
	l.closing = true
	l.conn, l.cancel = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "viewer stopped"); err != nil {
			l.logger.Debug("Websocket close handshake failed", "error", err)
		}
	}
	cancel()
	return nil
}

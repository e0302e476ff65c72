package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// RateEvents connect/join events are allowed per identity per RateWindow.
	RateEvents int
	RateWindow time.Duration
}

// SignalWSController serves the signaling WebSocket. It owns the
// transport; every state change goes through the coordinator.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter

	readLimit  int64
	pingPeriod time.Duration
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.RateEvents <= 0 || opts.RateWindow <= 0 {
		opts.RateEvents, opts.RateWindow = 10, 10*time.Second
	}
	return &SignalWSController{
		Orch:       o,
		Limiter:    NewRateLimiter(opts.RateEvents, opts.RateWindow),
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
	}
}

// WsSignalConn is the core.SignalConnection over one WebSocket. Frames are
// queued on a bounded buffer drained by the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func newWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, sendBuffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued and
// then closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request. A non-empty token (from the cookie
// session) authenticates the connection right away.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, token string) {
	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cid, conn, token)
}

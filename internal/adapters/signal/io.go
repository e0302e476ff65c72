package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when reading stops, the identity
// is torn down through the coordinator.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnID, c *WsSignalConn, token string) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		uid, bound := ctl.Orch.Registry.LookupConn(cid)
		if err := ctl.Orch.Disconnect(context.Background(), cid); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("disconnect incomplete")
		}
		ctl.Limiter.Forget(string(cid))
		if bound {
			ctl.Limiter.Forget(string(uid))
		}
		c.Close()
		cancel()
	}()

	pongWait := ctl.pingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if token != "" {
		ctl.connectUser(ctx, cid, c, token)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, cid, c, data)
	}
}

// handleSignal dispatches one inbound frame on its "type" field.
func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnID, c *WsSignalConn, data []byte) {
	if !gjson.ValidBytes(data) {
		ctl.sendError(c, "", domain.Validation("signal", "bad_json", "frame is not valid JSON"))
		return
	}
	msg := gjson.ParseBytes(data)
	typ := msg.Get("type").String()

	switch typ {
	case "ping":
		ctl.handlePing(c)
		return
	case "connectUser":
		ctl.connectUser(ctx, cid, c, msg.Get("token").String())
		return
	}

	uid, ok := ctl.Orch.Registry.LookupConn(cid)
	if !ok {
		ctl.sendError(c, typ, domain.Conflict(typ, "not_connected", "send connectUser first"))
		return
	}

	switch typ {
	case "whoami":
		ctl.handleWhoAmI(ctx, uid, c)
	case "connectServer":
		ctl.connectServer(ctx, uid, c, msg)
	case "disconnectServer":
		ctl.disconnectServer(ctx, uid, c, msg)
	case "connectChannel":
		ctl.connectChannel(ctx, uid, c, msg)
	case "disconnectChannel":
		ctl.disconnectChannel(ctx, uid, c, msg)
	case "updateUser":
		ctl.updateUser(ctx, uid, c, msg)
	case "updatePresence":
		ctl.updatePresence(ctx, uid, c, msg)
	case "updateMember":
		ctl.updateMember(ctx, uid, c, msg)
	case "RTCOffer":
		ctl.relay(ctx, uid, c, typ, app.SignalOffer, msg)
	case "RTCAnswer":
		ctl.relay(ctx, uid, c, typ, app.SignalAnswer, msg)
	case "RTCIceCandidate":
		ctl.relay(ctx, uid, c, typ, app.SignalCandidate, msg)
	case "RTCJoin":
		ctl.rtcJoin(ctx, uid, c, msg)
	case "RTCLeave":
		ctl.rtcLeave(ctx, uid, c, msg)
	case "applyServer":
		ctl.applyServer(ctx, uid, c, msg)
	case "listApplications":
		ctl.listApplications(ctx, uid, c, msg)
	case "acceptApplication":
		ctl.resolveApplication(ctx, uid, c, msg, true)
	case "rejectApplication":
		ctl.resolveApplication(ctx, uid, c, msg, false)
	case "blockMember":
		ctl.blockMember(ctx, uid, c, msg)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown signal")
		ctl.sendError(c, typ, domain.Validation("signal", "unknown_type", "unknown event type"))
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("reply dropped")
	}
}

type wireError struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type errorFrame struct {
	Type  string    `json:"type"`
	Op    string    `json:"op,omitempty"`
	Error wireError `json:"error"`
}

// sendError reports err to the caller only. Internal details stay in logs.
func (ctl *SignalWSController) sendError(c *WsSignalConn, op string, err error) {
	e := domain.Normalize(op, err)
	msg := e.Message
	if e.Kind == domain.KindInternal {
		msg = "internal error"
	}
	ctl.sendJSON(c, errorFrame{
		Type:  "error",
		Op:    op,
		Error: wireError{Kind: e.Kind.String(), Reason: e.Reason, Message: msg},
	})
}

// allow applies the connect/join rate limit.
func (ctl *SignalWSController) allow(c *WsSignalConn, op, key string) bool {
	if ctl.Limiter.Allow(key) {
		return true
	}
	log.Warn().Str("module", "signal").Str("op", op).Str("key", key).Msg("rate limited")
	ctl.sendError(c, op, domain.Denied(op, "rate_limited", "too many requests, slow down"))
	return false
}

func required(msg gjson.Result, op string, fields ...string) error {
	for _, f := range fields {
		if !msg.Get(f).Exists() || msg.Get(f).String() == "" {
			return domain.Validation(op, "missing_field", "missing field "+f)
		}
	}
	return nil
}

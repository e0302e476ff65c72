package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/tidwall/gjson"
)

// relay forwards an SDP or ICE payload to one peer without looking at it.
func (ctl *SignalWSController) relay(ctx context.Context, uid domain.UserID, conn *WsSignalConn, op string, kind app.SignalKind, msg gjson.Result) {
	if err := required(msg, op, "to"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	payload := msg.Get("payload")
	if !payload.Exists() {
		ctl.sendError(conn, op, domain.Validation(op, "missing_field", "missing field payload"))
		return
	}
	to := domain.UserID(msg.Get("to").String())
	if err := ctl.Orch.RelaySignal(ctx, uid, to, kind, json.RawMessage(payload.Raw)); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) rtcJoin(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "RTCJoin"
	if err := required(msg, op, "channelId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if !ctl.allow(conn, op, string(uid)) {
		return
	}
	if err := ctl.Orch.JoinRoom(ctx, uid, domain.ChannelID(msg.Get("channelId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) rtcLeave(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "RTCLeave"
	if err := required(msg, op, "channelId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if err := ctl.Orch.LeaveRoom(ctx, uid, domain.ChannelID(msg.Get("channelId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

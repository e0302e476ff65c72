package signal

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/tidwall/gjson"
)

// Server and channel navigation. Success events are emitted by the
// coordinator; only failures are answered here.

func (ctl *SignalWSController) connectServer(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "connectServer"
	if err := required(msg, op, "serverId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if !ctl.allow(conn, op, string(uid)) {
		return
	}
	if _, err := ctl.Orch.JoinServer(ctx, uid, domain.ServerID(msg.Get("serverId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) disconnectServer(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "disconnectServer"
	if err := required(msg, op, "serverId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if err := ctl.Orch.LeaveServer(ctx, uid, domain.ServerID(msg.Get("serverId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) connectChannel(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "connectChannel"
	if err := required(msg, op, "channelId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if !ctl.allow(conn, op, string(uid)) {
		return
	}
	if _, err := ctl.Orch.JoinChannel(ctx, uid, domain.ChannelID(msg.Get("channelId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) disconnectChannel(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "disconnectChannel"
	if err := required(msg, op, "channelId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if err := ctl.Orch.LeaveChannel(ctx, uid, domain.ChannelID(msg.Get("channelId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

package signal

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) updateUser(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "updateUser"
	name := msg.Get("displayName").String()
	log.Info().Str("module", "signal").Str("user", string(uid)).Str("name", name).Msg("rename")
	if _, err := ctl.Orch.UpdateUser(ctx, uid, name); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) updatePresence(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "updatePresence"
	if err := required(msg, op, "status"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if _, err := ctl.Orch.UpdatePresence(ctx, uid, msg.Get("status").String()); err != nil {
		ctl.sendError(conn, op, err)
	}
}

// updateMember sets the caller's nickname in one server; an empty
// nickname clears it.
func (ctl *SignalWSController) updateMember(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "updateMember"
	if err := required(msg, op, "serverId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	sid := domain.ServerID(msg.Get("serverId").String())
	if _, err := ctl.Orch.SetNickname(ctx, uid, sid, msg.Get("nickname").String()); err != nil {
		ctl.sendError(conn, op, err)
	}
}

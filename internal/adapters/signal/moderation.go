package signal

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) applyServer(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "applyServer"
	if err := required(msg, op, "serverId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	sid := domain.ServerID(msg.Get("serverId").String())
	if _, err := ctl.Orch.ApplyToServer(ctx, uid, sid, msg.Get("note").String()); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) listApplications(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "listApplications"
	if err := required(msg, op, "serverId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	if _, err := ctl.Orch.ListApplications(ctx, uid, domain.ServerID(msg.Get("serverId").String())); err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) resolveApplication(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result, accept bool) {
	op := "rejectApplication"
	if accept {
		op = "acceptApplication"
	}
	if err := required(msg, op, "serverId", "userId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	sid := domain.ServerID(msg.Get("serverId").String())
	applicant := domain.UserID(msg.Get("userId").String())
	var err error
	if accept {
		_, err = ctl.Orch.AcceptApplication(ctx, uid, applicant, sid)
	} else {
		err = ctl.Orch.RejectApplication(ctx, uid, applicant, sid)
	}
	if err != nil {
		ctl.sendError(conn, op, err)
	}
}

func (ctl *SignalWSController) blockMember(ctx context.Context, uid domain.UserID, conn *WsSignalConn, msg gjson.Result) {
	const op = "blockMember"
	if err := required(msg, op, "serverId", "userId"); err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	blocked := true
	if b := msg.Get("blocked"); b.Exists() {
		blocked = b.Bool()
	}
	target := domain.UserID(msg.Get("userId").String())
	if _, err := ctl.Orch.BlockMember(ctx, uid, target, domain.ServerID(msg.Get("serverId").String()), blocked); err != nil {
		ctl.sendError(conn, op, err)
	}
}

package signal

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, app.Event{Type: "pong"})
}

// connectUser authenticates the connection. On success the coordinator
// has already sent userConnect.
func (ctl *SignalWSController) connectUser(ctx context.Context, cid core.ConnID, conn *WsSignalConn, token string) {
	const op = "connectUser"
	if !ctl.allow(conn, op, string(cid)) {
		return
	}
	if _, err := ctl.Orch.ConnectUser(ctx, cid, conn, token); err != nil {
		ctl.sendJSON(conn, app.Event{Type: orch.EvUserDisconnect, Data: orch.DisconnectEvent{Reason: domain.Normalize(op, err).Reason}})
		ctl.sendError(conn, op, err)
	}
}

type whoAmI struct {
	User      *domain.Identity `json:"user"`
	State     string           `json:"state"`
	ServerID  domain.ServerID  `json:"serverId,omitempty"`
	ChannelID domain.ChannelID `json:"channelId,omitempty"`
	Status    domain.Status    `json:"status"`
}

func (ctl *SignalWSController) handleWhoAmI(ctx context.Context, uid domain.UserID, conn *WsSignalConn) {
	const op = "whoami"
	u, err := ctl.Orch.Identities.GetIdentity(ctx, uid)
	if err != nil {
		ctl.sendError(conn, op, domain.Wrap(op, err))
		return
	}
	state, err := ctl.Orch.StateOf(ctx, uid)
	if err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	pres, err := ctl.Orch.Presence.Get(ctx, uid)
	if err != nil {
		ctl.sendError(conn, op, err)
		return
	}
	ctl.sendJSON(conn, app.Event{Type: "whoami", Data: whoAmI{
		User:      u,
		State:     state.String(),
		ServerID:  pres.ServerID,
		ChannelID: pres.ChannelID,
		Status:    pres.Status,
	}})
}

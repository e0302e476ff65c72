package orch

import (
	"context"
	"sort"
	"strings"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Outbound event types.
const (
	EvUserConnect        = "userConnect"
	EvUserDisconnect     = "userDisconnect"
	EvServerUpdate       = "serverUpdate"
	EvChannelConnect     = "channelConnect"
	EvChannelDisconnect  = "channelDisconnect"
	EvChannelCue         = "channelCue"
	EvUserUpdate         = "userUpdate"
	EvUserPresenceUpdate = "userPresenceUpdate"
	EvApplicationCreated = "applicationCreated"
	EvApplications       = "applications"
	EvApplicationResult  = "applicationResolved"
	EvMemberBlocked      = "memberBlocked"
)

const (
	CueJoin  = "join"
	CueLeave = "leave"
)

// MemberView is a read-only roster entry (no transport fields).
type MemberView struct {
	ID          domain.UserID          `json:"id"`
	DisplayName string                 `json:"displayName"`
	Nickname    string                 `json:"nickname,omitempty"`
	Level       int                    `json:"level"`
	Permission  domain.PermissionLevel `json:"permission"`
	Status      domain.Status          `json:"status"`
}

type ChannelSnapshot struct {
	domain.Channel
	Occupants []MemberView `json:"occupants"`
}

// ServerSnapshot is what serverUpdate carries.
type ServerSnapshot struct {
	Server   domain.Server     `json:"server"`
	Channels []ChannelSnapshot `json:"channels"`
	Online   []MemberView      `json:"online"`
	// Offline lists members that are not in the audience. Blocked members
	// are left out.
	Offline []MemberView `json:"offline"`
}

// Occupants returns the occupant ids of a channel in the snapshot.
func (s *ServerSnapshot) Occupants(ch domain.ChannelID) []domain.UserID {
	for _, c := range s.Channels {
		if c.ID == ch {
			out := make([]domain.UserID, len(c.Occupants))
			for i, m := range c.Occupants {
				out[i] = m.ID
			}
			return out
		}
	}
	return nil
}

type ChannelEvent struct {
	ServerID  domain.ServerID  `json:"serverId"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type CueEvent struct {
	Cue       string           `json:"cue"`
	UserID    domain.UserID    `json:"userId"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type ConnectEvent struct {
	User     *domain.Identity `json:"user"`
	Presence domain.Presence  `json:"presence"`
}

type DisconnectEvent struct {
	Reason string `json:"reason"`
}

// snapshot builds the server view from the catalog and the live sets.
func (o *Orchestrator) snapshot(ctx context.Context, srv *domain.Server) (*ServerSnapshot, error) {
	chans, err := o.Catalog.ListChannels(ctx, srv.ID)
	if err != nil {
		return nil, domain.Internal("snapshot", err)
	}
	views := make(map[domain.UserID]MemberView)
	view := func(uid domain.UserID) MemberView {
		if v, ok := views[uid]; ok {
			return v
		}
		v := o.memberView(ctx, srv, uid)
		views[uid] = v
		return v
	}

	snap := &ServerSnapshot{Server: *srv, Channels: make([]ChannelSnapshot, 0, len(chans))}
	for _, ch := range chans {
		cs := ChannelSnapshot{Channel: *ch, Occupants: []MemberView{}}
		if !ch.IsCategory {
			for _, uid := range o.Groups.Members(core.ChannelGroup(ch.ID)) {
				cs.Occupants = append(cs.Occupants, view(uid))
			}
		}
		snap.Channels = append(snap.Channels, cs)
	}
	audience := o.Groups.Members(core.ServerGroup(srv.ID))
	snap.Online = make([]MemberView, 0, len(audience))
	present := make(map[domain.UserID]bool, len(audience))
	for _, uid := range audience {
		present[uid] = true
		snap.Online = append(snap.Online, view(uid))
	}

	members, err := o.Members.List(ctx, srv.ID)
	if err != nil {
		return nil, err
	}
	snap.Offline = make([]MemberView, 0, len(members))
	for _, ms := range members {
		if ms.Blocked || present[ms.UserID] {
			continue
		}
		snap.Offline = append(snap.Offline, view(ms.UserID))
	}
	return snap, nil
}

func (o *Orchestrator) memberView(ctx context.Context, srv *domain.Server, uid domain.UserID) MemberView {
	v := MemberView{ID: uid, DisplayName: string(uid), Level: 1, Permission: domain.LevelGuest, Status: domain.StatusOnline}
	if u, err := o.Identities.GetIdentity(ctx, uid); err == nil {
		v.DisplayName = u.DisplayName
		v.Level = u.Level
	}
	if ms, found, err := o.Members.Get(ctx, uid, srv.ID); err == nil && found {
		v.Nickname = ms.Nickname
		v.Permission = ms.Level
	}
	if srv.OwnerID == uid {
		v.Permission = domain.LevelOwner
	}
	if p, err := o.Presence.Get(ctx, uid); err == nil && p.Status != domain.StatusOffline {
		v.Status = p.Status
	}
	return v
}

// broadcastServer sends a fresh snapshot to the whole server audience.
func (o *Orchestrator) broadcastServer(ctx context.Context, sid domain.ServerID) {
	if sid == "" {
		return
	}
	audience := o.Groups.Members(core.ServerGroup(sid))
	if len(audience) == 0 {
		return
	}
	srv, err := o.getServer(ctx, "broadcast_server", sid)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("server", string(sid)).Msg("snapshot server lookup")
		return
	}
	snap, err := o.snapshot(ctx, srv)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("server", string(sid)).Msg("snapshot build")
		return
	}
	o.Notify.Broadcast(audience, "", app.Event{Type: EvServerUpdate, Data: snap})
}

// cue tells the channel occupants and the moving identity about a join or
// leave. Join and leave are always separate events.
func (o *Orchestrator) cue(ch domain.ChannelID, mover domain.UserID, cue string) {
	recipients := withMember(o.Groups.Members(core.ChannelGroup(ch)), mover)
	o.Notify.Broadcast(recipients, "", app.Event{Type: EvChannelCue, Data: CueEvent{Cue: cue, UserID: mover, ChannelID: ch}})
}

// ServerSnapshot returns the server view to an identity allowed to enter it.
func (o *Orchestrator) ServerSnapshot(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*ServerSnapshot, error) {
	const op = "serverSnapshot"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	srv, err := o.getServer(ctx, op, sid)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	if err := o.Members.CanEnter(ctx, uid, srv); err != nil {
		return nil, o.fail(op, uid, err)
	}
	snap, err := o.snapshot(ctx, srv)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	return snap, nil
}

type ServerOnline struct {
	ServerID domain.ServerID `json:"serverId"`
	Name     string          `json:"name"`
	Online   int             `json:"online"`
}

// OnlineServers lists servers with a non-empty audience. Invisible servers
// are left out.
func (o *Orchestrator) OnlineServers(ctx context.Context) ([]ServerOnline, error) {
	const op = "onlineServers"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	out := make([]ServerOnline, 0)
	for _, g := range o.Groups.List() {
		raw, ok := strings.CutPrefix(string(g.ID), "server:")
		if !ok || g.MemberCount == 0 {
			continue
		}
		srv, err := o.getServer(ctx, op, domain.ServerID(raw))
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				continue
			}
			return nil, o.fail(op, "", err)
		}
		if srv.Visibility == domain.ServerInvisible {
			continue
		}
		out = append(out, ServerOnline{ServerID: srv.ID, Name: srv.Name, Online: g.MemberCount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out, nil
}

package app

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// EventType is the wire event a relayed signal is delivered as.
func (k SignalKind) EventType() string {
	switch k {
	case SignalOffer:
		return "RTCOffer"
	case SignalAnswer:
		return "RTCAnswer"
	case SignalCandidate:
		return "RTCIceCandidate"
	}
	return ""
}

type RelayedSignal struct {
	From    domain.UserID   `json:"from"`
	Kind    SignalKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type RoomAnnouncement struct {
	UserID    domain.UserID    `json:"userId"`
	ChannelID domain.ChannelID `json:"channelId"`
}

// Relay forwards call-setup messages between connections and runs the
// per-channel discovery rooms. It never looks inside payloads.
type Relay struct {
	reg    *Registry
	rooms  core.GroupManager
	notify *Notifier

	mu     sync.Mutex
	joined map[domain.UserID]domain.ChannelID
}

func NewRelay(reg *Registry, rooms core.GroupManager, notify *Notifier) *Relay {
	return &Relay{
		reg:    reg,
		rooms:  rooms,
		notify: notify,
		joined: make(map[domain.UserID]domain.ChannelID),
	}
}

// Relay forwards payload verbatim to the peer. A peer without a connection
// is not an error: it went away mid-negotiation.
func (r *Relay) Relay(_ context.Context, from, to domain.UserID, kind SignalKind, payload json.RawMessage) error {
	const op = "relay.forward"
	evType := kind.EventType()
	if evType == "" {
		return domain.Validation(op, "unknown_signal", "unknown signal kind")
	}
	if to == "" {
		return domain.Validation(op, "missing_peer", "missing target peer")
	}
	b, ok := r.reg.LookupUser(to)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Str("to", string(to)).Msg("peer gone, dropping signal")
		return nil
	}
	r.notify.SendConn(to, b.Conn, Event{Type: evType, Data: RelayedSignal{From: from, Kind: kind, Payload: payload}})
	return nil
}

// JoinRoom subscribes uid to the channel's discovery room and announces it
// to the peers already there. Joining another room leaves the previous one.
func (r *Relay) JoinRoom(uid domain.UserID, ch domain.ChannelID) bool {
	r.mu.Lock()
	prev, had := r.joined[uid]
	if had && prev == ch {
		r.mu.Unlock()
		return false
	}
	r.joined[uid] = ch
	r.mu.Unlock()

	if had {
		r.leave(uid, prev)
	}
	peers := r.rooms.Members(core.RTCGroup(ch))
	r.rooms.Join(core.RTCGroup(ch), uid)
	r.notify.Broadcast(peers, uid, Event{Type: "RTCJoin", Data: RoomAnnouncement{UserID: uid, ChannelID: ch}})
	log.Info().Str("module", "app.relay").Str("user", string(uid)).Str("channel", string(ch)).Int("peers", len(peers)).Msg("joined rtc room")
	return true
}

// LeaveRoom unsubscribes uid from ch, if it is there.
func (r *Relay) LeaveRoom(uid domain.UserID, ch domain.ChannelID) bool {
	r.mu.Lock()
	cur, ok := r.joined[uid]
	if !ok || cur != ch {
		r.mu.Unlock()
		return false
	}
	delete(r.joined, uid)
	r.mu.Unlock()
	r.leave(uid, ch)
	return true
}

// LeaveAll drops uid from whatever room it is in.
func (r *Relay) LeaveAll(uid domain.UserID) {
	r.mu.Lock()
	ch, ok := r.joined[uid]
	delete(r.joined, uid)
	r.mu.Unlock()
	if ok {
		r.leave(uid, ch)
	}
}

func (r *Relay) RoomOf(uid domain.UserID) (domain.ChannelID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.joined[uid]
	return ch, ok
}

func (r *Relay) leave(uid domain.UserID, ch domain.ChannelID) {
	if !r.rooms.Leave(core.RTCGroup(ch), uid) {
		return
	}
	r.notify.Broadcast(r.rooms.Members(core.RTCGroup(ch)), uid, Event{Type: "RTCLeave", Data: RoomAnnouncement{UserID: uid, ChannelID: ch}})
	log.Info().Str("module", "app.relay").Str("user", string(uid)).Str("channel", string(ch)).Msg("left rtc room")
}

package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Event is the outbound envelope: {"type": ..., "data": ...}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notifier delivers events to identities through their bound connection.
// Delivery is best effort: a missing or slow peer never fails the caller.
type Notifier struct {
	reg    *Registry
	policy Policy
}

func NewNotifier(reg *Registry, policy Policy) *Notifier {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Notifier{reg: reg, policy: policy}
}

func Encode(ev Event) (core.Frame, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

// SendConn writes ev to a specific connection, bound or not.
func (n *Notifier) SendConn(uid domain.UserID, conn core.SignalConnection, ev Event) bool {
	f, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Str("type", ev.Type).Msg("encode event")
		return false
	}
	return n.deliver(uid, conn, f)
}

// SendTo writes ev to uid's current connection. It reports false when uid
// is not connected or the frame was dropped.
func (n *Notifier) SendTo(uid domain.UserID, ev Event) bool {
	b, ok := n.reg.LookupUser(uid)
	if !ok {
		return false
	}
	return n.SendConn(uid, b.Conn, ev)
}

// Broadcast encodes ev once and sends it to every uid except skip.
func (n *Notifier) Broadcast(uids []domain.UserID, skip domain.UserID, ev Event) int {
	if len(uids) == 0 {
		return 0
	}
	f, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Str("type", ev.Type).Msg("encode event")
		return 0
	}
	sent := 0
	for _, uid := range uids {
		if uid == skip {
			continue
		}
		b, ok := n.reg.LookupUser(uid)
		if !ok {
			continue
		}
		if n.deliver(uid, b.Conn, f) {
			sent++
		}
	}
	log.Debug().Str("module", "app.notifier").Str("type", ev.Type).Int("sent_to", sent).Msg("broadcast result")
	return sent
}

func (n *Notifier) deliver(uid domain.UserID, conn core.SignalConnection, f core.Frame) bool {
	err := conn.TrySend(f)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrBackpressure) {
		switch n.policy.OnBackPressure(uid, conn) {
		case KickMember:
			log.Warn().Str("module", "app.notifier").Str("user", string(uid)).Msg("slow connection, closing")
			conn.Close()
		case DropFrame, NoAction:
		}
	}
	return false
}

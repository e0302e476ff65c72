package orch

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/domain"
)

// State is the position of an identity in the session state machine.
// Transitions are strictly nested:
//
//	DISCONNECTED -> CONNECTED -> IN_SERVER -> IN_CHANNEL
type State int

const (
	Disconnected State = iota
	Connected
	InServer
	InChannel
)

func (s State) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case InServer:
		return "IN_SERVER"
	case InChannel:
		return "IN_CHANNEL"
	}
	return "DISCONNECTED"
}

// StateOf derives the state from the registry and the stored presence.
func (o *Orchestrator) StateOf(ctx context.Context, uid domain.UserID) (State, error) {
	if !o.connected(uid) {
		return Disconnected, nil
	}
	p, err := o.Presence.Get(ctx, uid)
	if err != nil {
		return Connected, err
	}
	switch {
	case p.ChannelID != "":
		return InChannel, nil
	case p.ServerID != "":
		return InServer, nil
	}
	return Connected, nil
}

package app

import (
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(uid domain.UserID, conn core.SignalConnection) BackpressureAction
}

// SimplePolicy closes slow connections; the transport then runs the normal
// disconnect pipeline.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return KickMember
}

// LenientPolicy only drops the frame.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return DropFrame
}

package orch

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/rs/zerolog/log"
)

// LevelEvent is the userUpdate payload produced by an accrual tick.
type LevelEvent struct {
	Level        int   `json:"level"`
	XP           int64 `json:"xp"`
	LevelsGained int   `json:"levelsGained,omitempty"`
}

// onAccrualTick runs inside the identity's critical section and drops
// ticks whose occupancy ended or moved since the timer fired.
func (o *Orchestrator) onAccrualTick(key app.AccrualKey, gen uint64) {
	ctx, cancel := o.withTimeout(context.Background())
	defer cancel()

	unlock := o.Seq.Lock(key.UserID)
	defer unlock()

	if !o.Accrual.Current(key, gen) {
		log.Debug().Str("module", "orch").Str("user", string(key.UserID)).Uint64("gen", gen).Msg("stale accrual tick")
		return
	}
	pres, err := o.Presence.Get(ctx, key.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(key.UserID)).Msg("accrual presence read")
		return
	}
	if pres.ServerID != key.ServerID || pres.ChannelID != key.ChannelID {
		log.Debug().Str("module", "orch").Str("user", string(key.UserID)).Str("channel", string(key.ChannelID)).Msg("accrual tick for a vacated channel")
		return
	}

	res, err := o.Accrual.Accrue(ctx, key.UserID, key.ServerID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(key.UserID)).Msg("accrual failed")
		if res.Identity == nil {
			return
		}
	}
	o.Notify.SendTo(key.UserID, app.Event{Type: EvUserUpdate, Data: LevelEvent{
		Level:        res.Identity.Level,
		XP:           res.Identity.XP,
		LevelsGained: res.LevelsGained,
	}})
}

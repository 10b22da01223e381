package session

import (
	"fmt"

	"github.com/kapu/chess-rooms-go/internal/room"
	"github.com/kapu/chess-rooms-go/pkg/roomdto"
)

// viewLocked projects the latest snapshot into presentation-ready
// data. Pure derivation; it performs no writes and holds no state the
// snapshot does not already carry. Callers hold s.mu.
func (s *Session) viewLocked() *roomdto.SessionView {
	v := &roomdto.SessionView{
		Code:     s.code,
		OwnName:  s.name,
		OwnColor: string(s.color),
	}
	r := s.latest
	if r == nil {
		v.Removed = s.removed
		v.Waiting = true
		if s.removed {
			v.Banner = s.cat.MustRender("status.room_removed", nil)
		}
		return v
	}

	if opp := r.PlayerByColor(s.color.Other()); opp != nil {
		v.OpponentName = opp.Name
	}
	v.Turn = string(r.Turn)
	v.Position = r.Position
	v.MyTurn = s.phase == PhaseMyTurn
	v.Waiting = s.phase == PhaseWaitingForOpponent
	v.GameOver = s.phase == PhaseGameOver
	v.Winner = r.Winner

	switch {
	case r.Winner == room.DrawWinner:
		v.Banner = s.cat.MustRender("banner.draw", nil)
	case r.Winner != "":
		v.Banner = s.cat.MustRender("banner.win", map[string]string{"Winner": r.Winner})
	case v.Waiting:
		v.Banner = s.cat.MustRender("banner.waiting", nil)
	}

	if r.Timers != nil {
		v.WhiteClock = formatClock(r.Timers.White)
		v.BlackClock = formatClock(r.Timers.Black)
	} else {
		unlimited := s.cat.MustRender("clock.unlimited", nil)
		v.WhiteClock = unlimited
		v.BlackClock = unlimited
	}
	return v
}

// formatClock renders whole seconds as M:SS, floor-divided.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

package room

import (
	"strconv"
	"strings"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// DrawWinner is the sentinel stored in the winner field when the game
// ended without a winning side (stalemate or draw by rule).
const DrawWinner = "Draw"

// TimeControlUnlimited disables clocks for a room. Any other value is
// the initial budget in seconds per side, as a decimal string.
const TimeControlUnlimited = "unlimited"

// Player occupies one of the two participant slots. The slot fixes the
// color: player1 is always white, player2 always black.
type Player struct {
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

// Timers holds remaining whole seconds per side. Present iff the room
// has a finite time control.
type Timers struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// Room is the single shared record for one game session, keyed by a
// 4-digit code. Both clients mutate it only through the store adapter;
// there is no other coordination channel between them.
type Room struct {
	Code        string
	Player1     *Player // white, set by the creator
	Player2     *Player // black, set on join
	Position    string  // FEN
	Turn        Color
	Winner      string // empty = undecided, DrawWinner = draw
	TimeControl string
	Timers      *Timers
}

// Empty reports whether both participant slots are vacant. An empty
// room is garbage and any observer may remove it.
func (r *Room) Empty() bool {
	return r != nil && r.Player1 == nil && r.Player2 == nil
}

// PlayerByColor returns the participant occupying the given side, or
// nil when the slot is vacant.
func (r *Room) PlayerByColor(c Color) *Player {
	if r == nil {
		return nil
	}
	if c == White {
		return r.Player1
	}
	return r.Player2
}

// TimeBudget parses the configured time control. ok is false for
// unlimited rooms.
func (r *Room) TimeBudget() (seconds int, ok bool) {
	if r == nil {
		return 0, false
	}
	tc := strings.TrimSpace(r.TimeControl)
	if tc == "" || tc == TimeControlUnlimited {
		return 0, false
	}
	n, err := strconv.Atoi(tc)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy so callers can hold a snapshot without
// racing the subscription loop.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	if r.Player1 != nil {
		p := *r.Player1
		out.Player1 = &p
	}
	if r.Player2 != nil {
		p := *r.Player2
		out.Player2 = &p
	}
	if r.Timers != nil {
		t := *r.Timers
		out.Timers = &t
	}
	return &out
}

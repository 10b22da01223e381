package room

// Patch is the closed set of fields a caller may merge into a room
// record. Nil pointer members are left untouched. Participant slots
// and the winner carry an explicit Set flag so "clear this field" is
// distinguishable from "leave it alone"; the store translates a clear
// into a field deletion, which is how the absent states of the data
// model are represented on the wire.
//
// There is deliberately no way to express a field outside this set:
// the record is a closed struct and the store only knows these names.
type Patch struct {
	SetPlayer1 bool
	Player1    *Player // nil clears the slot when SetPlayer1

	SetPlayer2 bool
	Player2    *Player

	Position *string
	Turn     *Color

	SetWinner bool
	Winner    string // empty clears

	TimeControl *string

	TimerWhite  *int
	TimerBlack  *int
	ClearTimers bool
}

// IsZero reports whether the patch names no field at all.
func (p Patch) IsZero() bool {
	return !p.SetPlayer1 && !p.SetPlayer2 && p.Position == nil && p.Turn == nil &&
		!p.SetWinner && p.TimeControl == nil &&
		p.TimerWhite == nil && p.TimerBlack == nil && !p.ClearTimers
}

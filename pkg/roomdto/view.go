package roomdto

// SessionView is the presentation-ready projection of the latest room
// snapshot for one client. It is pure data derived inside the session
// layer; rendering surfaces consume it and never write shared state
// through it.
type SessionView struct {
	Code         string
	OwnName      string
	OwnColor     string
	OpponentName string

	Turn    string
	MyTurn  bool
	Waiting bool

	GameOver bool
	Winner   string
	Banner   string

	WhiteClock string
	BlackClock string

	Position string

	// Removed is set once the room record no longer exists.
	Removed bool
}

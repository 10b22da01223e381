package room

import "errors"

var (
	ErrInvalidArgs  = errors.New("invalid arguments")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room already has two participants")
	ErrCodeTaken    = errors.New("room code already in use")

	// ErrIllegalMove is returned before any store write; the board is
	// left untouched and the UI simply ignores the attempt.
	ErrIllegalMove = errors.New("illegal move")

	// ErrStaleTurn marks a proposed action while the local state
	// machine is not in MyTurn. The UI gates on phase already, so the
	// arbitrator check is defense in depth.
	ErrStaleTurn = errors.New("stale turn attempt")

	ErrGameOver       = errors.New("game already decided")
	ErrGameInProgress = errors.New("game still in progress")
	ErrNoOpponent     = errors.New("no opponent present")

	// ErrMalformedPosition means a snapshot's position failed to
	// parse. Sessions recover by overwriting it with the starting
	// position rather than failing.
	ErrMalformedPosition = errors.New("malformed position")
)

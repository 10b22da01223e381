// Package rules wraps the chess engine behind the narrow oracle
// contract the session layer consumes: move legality, resulting
// position, side to move, legal destinations, and terminal verdicts.
// Positions are plain FEN strings so the shared record stays a flat
// interchange format.
package rules

import (
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/chess-rooms-go/internal/room"
)

// Verdict classifies a position.
type Verdict int

const (
	Ongoing Verdict = iota
	Checkmate
	Draw
)

// Terminal is the oracle's answer to "did this position end the game".
// Winner is meaningful only when Verdict is Checkmate.
type Terminal struct {
	Verdict Verdict
	Winner  room.Color
}

// StartingPosition returns the canonical initial position in FEN.
func StartingPosition() string {
	return nchess.NewGame().FEN()
}

func gameFrom(position string) (*nchess.Game, error) {
	fen := strings.TrimSpace(position)
	if fen == "" {
		return nchess.NewGame(), nil
	}
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", room.ErrMalformedPosition, err)
	}
	return nchess.NewGame(option), nil
}

// SideToMove reports the color to move in position.
func SideToMove(position string) (room.Color, error) {
	game, err := gameFrom(position)
	if err != nil {
		return "", err
	}
	return colorFrom(game.Position().Turn()), nil
}

// ApplyMove validates from→to against position and returns the
// resulting position together with its terminal verdict, computed on
// the same reconstruction so the two never disagree. Promotion is a
// piece letter ("q", "r", "b", "n"); when empty, a promoting pawn
// move defaults to queen.
func ApplyMove(position, from, to, promotion string) (string, Terminal, error) {
	game, err := gameFrom(position)
	if err != nil {
		return "", Terminal{}, err
	}
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to))
	if len(uci) != 4 {
		return "", Terminal{}, room.ErrIllegalMove
	}
	if p := strings.ToLower(strings.TrimSpace(promotion)); p != "" {
		uci += p
	} else if isPromotion(game, uci) {
		uci += "q"
	}
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return "", Terminal{}, room.ErrIllegalMove
	}
	return game.FEN(), terminalOf(game), nil
}

// isPromotion detects a pawn move that only becomes legal with a
// promotion suffix appended.
func isPromotion(game *nchess.Game, uci string) bool {
	notation := nchess.UCINotation{}
	if _, err := notation.Decode(game.Position(), uci); err == nil {
		return false
	}
	_, err := notation.Decode(game.Position(), uci+"q")
	return err == nil
}

// LegalDestinations lists the squares reachable from square, sorted.
// An empty slice means the square has no piece of the moving side or
// no legal move.
func LegalDestinations(position, square string) ([]string, error) {
	game, err := gameFrom(position)
	if err != nil {
		return nil, err
	}
	sq := strings.ToLower(strings.TrimSpace(square))
	seen := make(map[string]bool)
	out := []string{}
	for _, mv := range game.ValidMoves() {
		if mv.S1().String() != sq {
			continue
		}
		to := mv.S2().String()
		if seen[to] {
			continue
		}
		seen[to] = true
		out = append(out, to)
	}
	sort.Strings(out)
	return out, nil
}

// IsTerminal classifies a standalone position. Checkmate and
// stalemate come from the position itself; draw-by-rule states that
// need game history (repetition, fifty moves) are reported by
// ApplyMove's verdict instead.
func IsTerminal(position string) (Terminal, error) {
	game, err := gameFrom(position)
	if err != nil {
		return Terminal{}, err
	}
	pos := game.Position()
	switch pos.Status() {
	case nchess.Checkmate:
		return Terminal{Verdict: Checkmate, Winner: colorFrom(pos.Turn()).Other()}, nil
	case nchess.Stalemate:
		return Terminal{Verdict: Draw}, nil
	}
	if game.Outcome() == nchess.Draw {
		return Terminal{Verdict: Draw}, nil
	}
	return Terminal{Verdict: Ongoing}, nil
}

func terminalOf(game *nchess.Game) Terminal {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return Terminal{Verdict: Checkmate, Winner: room.White}
	case nchess.BlackWon:
		return Terminal{Verdict: Checkmate, Winner: room.Black}
	case nchess.Draw:
		return Terminal{Verdict: Draw}
	}
	return Terminal{Verdict: Ongoing}
}

func colorFrom(c nchess.Color) room.Color {
	if c == nchess.White {
		return room.White
	}
	return room.Black
}

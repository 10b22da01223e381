package rules

import (
	"errors"
	"testing"

	"github.com/kapu/chess-rooms-go/internal/room"
)

func TestStartingPositionWhiteToMove(t *testing.T) {
	side, err := SideToMove(StartingPosition())
	if err != nil {
		t.Fatalf("SideToMove: %v", err)
	}
	if side != room.White {
		t.Fatalf("expected white to move, got %s", side)
	}
}

func TestApplyMoveFlipsSideToMove(t *testing.T) {
	next, verdict, err := ApplyMove(StartingPosition(), "e2", "e4", "")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if verdict.Verdict != Ongoing {
		t.Fatalf("expected ongoing, got %v", verdict.Verdict)
	}
	if next == StartingPosition() {
		t.Fatalf("position did not change")
	}
	side, err := SideToMove(next)
	if err != nil {
		t.Fatalf("SideToMove(next): %v", err)
	}
	if side != room.Black {
		t.Fatalf("expected black to move after e2e4, got %s", side)
	}
}

func TestApplyMoveRejectsIllegal(t *testing.T) {
	cases := []struct{ from, to string }{
		{"e2", "e5"}, // pawn cannot jump three
		{"e7", "e5"}, // black piece while white to move
		{"e3", "e4"}, // empty square
		{"xx", "yy"}, // not squares at all
	}
	for _, c := range cases {
		if _, _, err := ApplyMove(StartingPosition(), c.from, c.to, ""); !errors.Is(err, room.ErrIllegalMove) {
			t.Fatalf("ApplyMove(%s%s): expected ErrIllegalMove, got %v", c.from, c.to, err)
		}
	}
}

func TestApplyMoveMalformedPosition(t *testing.T) {
	if _, _, err := ApplyMove("not a position", "e2", "e4", ""); !errors.Is(err, room.ErrMalformedPosition) {
		t.Fatalf("expected ErrMalformedPosition, got %v", err)
	}
}

func TestFoolsMateIsCheckmateForBlack(t *testing.T) {
	pos := StartingPosition()
	moves := []struct{ from, to string }{
		{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}, {"d8", "h4"},
	}
	var verdict Terminal
	var err error
	for _, mv := range moves {
		pos, verdict, err = ApplyMove(pos, mv.from, mv.to, "")
		if err != nil {
			t.Fatalf("ApplyMove(%s%s): %v", mv.from, mv.to, err)
		}
	}
	if verdict.Verdict != Checkmate || verdict.Winner != room.Black {
		t.Fatalf("expected black checkmate, got %+v", verdict)
	}
	term, err := IsTerminal(pos)
	if err != nil {
		t.Fatalf("IsTerminal: %v", err)
	}
	if term.Verdict != Checkmate || term.Winner != room.Black {
		t.Fatalf("IsTerminal disagrees: %+v", term)
	}
}

func TestStalemateIsDraw(t *testing.T) {
	term, err := IsTerminal("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if err != nil {
		t.Fatalf("IsTerminal: %v", err)
	}
	if term.Verdict != Draw {
		t.Fatalf("expected draw, got %+v", term)
	}
}

func TestOngoingPosition(t *testing.T) {
	term, err := IsTerminal(StartingPosition())
	if err != nil {
		t.Fatalf("IsTerminal: %v", err)
	}
	if term.Verdict != Ongoing {
		t.Fatalf("expected ongoing, got %+v", term)
	}
}

func TestLegalDestinations(t *testing.T) {
	dests, err := LegalDestinations(StartingPosition(), "e2")
	if err != nil {
		t.Fatalf("LegalDestinations: %v", err)
	}
	if len(dests) != 2 || dests[0] != "e3" || dests[1] != "e4" {
		t.Fatalf("expected [e3 e4], got %v", dests)
	}
	empty, err := LegalDestinations(StartingPosition(), "d5")
	if err != nil {
		t.Fatalf("LegalDestinations(d5): %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no destinations from empty square, got %v", empty)
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	next, verdict, err := ApplyMove("8/P7/8/8/8/8/8/k6K w - - 0 1", "a7", "a8", "")
	if err != nil {
		t.Fatalf("ApplyMove promotion: %v", err)
	}
	if verdict.Verdict != Ongoing {
		t.Fatalf("expected ongoing after promotion, got %+v", verdict)
	}
	if next[0] != 'Q' {
		t.Fatalf("expected a white queen on a8, got %q", next)
	}
}

func TestBoardASCII(t *testing.T) {
	board, err := BoardASCII(StartingPosition())
	if err != nil {
		t.Fatalf("BoardASCII: %v", err)
	}
	lines := []string{"8  r n b q k b n r", "1  R N B Q K B N R"}
	for _, want := range lines {
		found := false
		for _, line := range splitLines(board) {
			if line == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing line %q in board:\n%s", want, board)
		}
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

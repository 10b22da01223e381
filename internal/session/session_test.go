package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"

	"github.com/kapu/chess-rooms-go/internal/lobby"
	"github.com/kapu/chess-rooms-go/internal/room"
	"github.com/kapu/chess-rooms-go/internal/roomstore"
	"github.com/kapu/chess-rooms-go/internal/rules"
)

func newTestEnv(t *testing.T) (*roomstore.Store, *lobby.Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	s, err := roomstore.Open(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("roomstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, lobby.NewManager(s)
}

func attachTest(t *testing.T, store *roomstore.Store, rooms *lobby.Manager, code, name string, color room.Color, clk clockwork.Clock) *Session {
	t.Helper()
	s, err := Attach(context.Background(), store, rooms, code, name, color, Options{Clock: clk})
	if err != nil {
		t.Fatalf("Attach(%s): %v", name, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// snapshots arrive over pub/sub, so assertions poll.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func playMove(t *testing.T, s *Session, from, to string) {
	t.Helper()
	waitUntil(t, fmt.Sprintf("%s to move", s.name), func() bool { return s.Phase() == PhaseMyTurn })
	if err := s.ProposeMove(context.Background(), from, to, ""); err != nil {
		t.Fatalf("ProposeMove(%s%s) by %s: %v", from, to, s.name, err)
	}
}

func TestJoinAndAlternateTurns(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	alice := attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)
	waitUntil(t, "alice waiting", func() bool { return alice.Phase() == PhaseWaitingForOpponent })

	if _, err := rooms.JoinRoom(ctx, r.Code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	bob := attachTest(t, store, rooms, r.Code, "Bob", room.Black, nil)

	waitUntil(t, "alice my_turn", func() bool { return alice.Phase() == PhaseMyTurn })
	waitUntil(t, "bob opponent_turn", func() bool { return bob.Phase() == PhaseOpponentTurn })

	// the side not to move is rejected before any store write
	if err := bob.ProposeMove(ctx, "e7", "e5", ""); !errors.Is(err, room.ErrStaleTurn) {
		t.Fatalf("expected ErrStaleTurn for out-of-turn move, got %v", err)
	}

	playMove(t, alice, "e2", "e4")
	waitUntil(t, "bob my_turn", func() bool { return bob.Phase() == PhaseMyTurn })
	waitUntil(t, "alice opponent_turn", func() bool { return alice.Phase() == PhaseOpponentTurn })

	playMove(t, bob, "e7", "e5")
	waitUntil(t, "alice my_turn again", func() bool { return alice.Phase() == PhaseMyTurn })

	view := bob.View()
	if view.OpponentName != "Alice" || view.OwnColor != string(room.Black) {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestLegalDestinationsGatedByTurn(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := rooms.JoinRoom(ctx, r.Code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	alice := attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)
	bob := attachTest(t, store, rooms, r.Code, "Bob", room.Black, nil)

	waitUntil(t, "alice my_turn", func() bool { return alice.Phase() == PhaseMyTurn })
	dests, err := alice.LegalDestinations("e2")
	if err != nil {
		t.Fatalf("LegalDestinations: %v", err)
	}
	if len(dests) != 2 || dests[0] != "e3" || dests[1] != "e4" {
		t.Fatalf("unexpected destinations for e2: %v", dests)
	}

	waitUntil(t, "bob opponent_turn", func() bool { return bob.Phase() == PhaseOpponentTurn })
	if dests, err := bob.LegalDestinations("e7"); err != nil || dests != nil {
		t.Fatalf("expected no highlights off turn, got %v %v", dests, err)
	}
}

func TestCheckmateEndsGameAndRematchResets(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := rooms.JoinRoom(ctx, r.Code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	alice := attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)
	bob := attachTest(t, store, rooms, r.Code, "Bob", room.Black, nil)

	if err := bob.PlayAgain(ctx); !errors.Is(err, room.ErrGameInProgress) {
		t.Fatalf("expected ErrGameInProgress before a verdict, got %v", err)
	}

	// fool's mate, delivered by black
	playMove(t, alice, "f2", "f3")
	playMove(t, bob, "e7", "e5")
	playMove(t, alice, "g2", "g4")
	playMove(t, bob, "d8", "h4")

	waitUntil(t, "both sides game_over", func() bool {
		return alice.Phase() == PhaseGameOver && bob.Phase() == PhaseGameOver
	})
	if v := alice.View(); v.Winner != "Bob" || !v.GameOver {
		t.Fatalf("unexpected terminal view: %+v", v)
	}
	if err := alice.ProposeMove(ctx, "e2", "e4", ""); !errors.Is(err, room.ErrGameOver) {
		t.Fatalf("expected ErrGameOver after checkmate, got %v", err)
	}

	if err := bob.PlayAgain(ctx); err != nil {
		t.Fatalf("PlayAgain: %v", err)
	}
	waitUntil(t, "rematch rearms white", func() bool { return alice.Phase() == PhaseMyTurn })
	if v := bob.View(); v.Winner != "" || v.Position != rules.StartingPosition() {
		t.Fatalf("rematch did not reset: %+v", v)
	}
}

func TestResign(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	alice := attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)
	waitUntil(t, "alice has a snapshot", func() bool { return alice.Snapshot() != nil })

	// resigning with nobody across the board is refused
	if err := alice.Resign(ctx); !errors.Is(err, room.ErrNoOpponent) {
		t.Fatalf("expected ErrNoOpponent, got %v", err)
	}

	if _, err := rooms.JoinRoom(ctx, r.Code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	waitUntil(t, "alice sees bob", func() bool { return alice.Phase() == PhaseMyTurn })

	if err := alice.Resign(ctx); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	waitUntil(t, "resignation lands", func() bool {
		v := alice.View()
		return v.GameOver && v.Winner == "Bob"
	})
	if err := alice.Resign(ctx); !errors.Is(err, room.ErrGameOver) {
		t.Fatalf("expected ErrGameOver on double resign, got %v", err)
	}
}

func TestLeaveVacatesAndEmptiesRoom(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := rooms.JoinRoom(ctx, r.Code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	alice := attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)
	bob := attachTest(t, store, rooms, r.Code, "Bob", room.Black, nil)
	waitUntil(t, "alice my_turn", func() bool { return alice.Phase() == PhaseMyTurn })

	if err := bob.Leave(ctx); err != nil {
		t.Fatalf("Leave(bob): %v", err)
	}
	waitUntil(t, "alice back to waiting", func() bool { return alice.Phase() == PhaseWaitingForOpponent })

	if err := alice.Leave(ctx); err != nil {
		t.Fatalf("Leave(alice): %v", err)
	}
	if _, err := store.Get(ctx, r.Code); !errors.Is(err, room.ErrRoomNotFound) {
		t.Fatalf("expected empty room to be removed, got %v", err)
	}
}

func TestRemovalObservedBySubscriber(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	alice := attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)
	waitUntil(t, "alice has a snapshot", func() bool { return alice.Snapshot() != nil })

	if err := store.Remove(ctx, r.Code); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	waitUntil(t, "removal reaches the view", func() bool {
		v := alice.View()
		return v.Removed && v.Waiting
	})
}

func TestMalformedPositionRepaired(t *testing.T) {
	store, rooms := newTestEnv(t)
	ctx := context.Background()

	r, err := rooms.CreateRoom(ctx, "Alice", room.TimeControlUnlimited)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := rooms.JoinRoom(ctx, r.Code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	_ = attachTest(t, store, rooms, r.Code, "Alice", room.White, nil)

	bad := "not a position at all"
	if err := store.Patch(ctx, r.Code, room.Patch{Position: &bad}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	waitUntil(t, "position repaired", func() bool {
		got, err := store.Get(ctx, r.Code)
		return err == nil && got.Position == rules.StartingPosition() && got.Turn == room.White
	})
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err       error
		code      string
		retryable bool
	}{
		{room.ErrRoomNotFound, "room_not_found", false},
		{room.ErrRoomFull, "room_full", false},
		{room.ErrIllegalMove, "illegal_move", false},
		{room.ErrStaleTurn, "stale_turn", false},
		{room.ErrGameOver, "game_over", false},
		{room.ErrNoOpponent, "rejected", false},
		{errors.New("dial tcp: connection refused"), "store_unavailable", true},
	}
	for _, tc := range cases {
		d := Describe(tc.err, nil)
		if d.Code != tc.code || d.Retryable != tc.retryable {
			t.Fatalf("Describe(%v) = %+v, want code %s retryable %v", tc.err, d, tc.code, tc.retryable)
		}
		if d.Message == "" {
			t.Fatalf("Describe(%v) produced an empty message", tc.err)
		}
	}
}

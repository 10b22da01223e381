// Package session is the per-client half of the synchronization
// engine. A Session owns one store subscription for one room,
// re-derives the turn state machine from every incoming snapshot, and
// is the only path through which a client mutates shared state: move
// proposals, resignation, leaving, and rematches all pass through it.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kapu/chess-rooms-go/internal/lobby"
	"github.com/kapu/chess-rooms-go/internal/msgcat"
	"github.com/kapu/chess-rooms-go/internal/obslog"
	"github.com/kapu/chess-rooms-go/internal/room"
	"github.com/kapu/chess-rooms-go/internal/roomstore"
	"github.com/kapu/chess-rooms-go/internal/rules"
	"github.com/kapu/chess-rooms-go/pkg/roomdto"
)

// Phase is the client-side turn state machine. It is
// derived from snapshots, never from local intent: a client that just
// sent a move stays in its old phase until the store echoes the write
// back.
type Phase string

const (
	PhaseWaitingForOpponent Phase = "waiting_for_opponent"
	PhaseMyTurn             Phase = "my_turn"
	PhaseOpponentTurn       Phase = "opponent_turn"
	PhaseGameOver           Phase = "game_over"
)

// Options tune a session. The zero value is usable.
type Options struct {
	// OnChange is invoked after every applied snapshot, from the
	// subscription goroutine. It must not block for long.
	OnChange func(*roomdto.SessionView)

	// Clock drives the countdown controller; tests inject a fake.
	Clock clockwork.Clock

	// Messages overrides the embedded catalog.
	Messages *msgcat.Catalog
}

// Session is one client's live attachment to a room.
type Session struct {
	ID    string
	code  string
	name  string
	color room.Color

	store *roomstore.Store
	rooms *lobby.Manager
	cat   *msgcat.Catalog

	mu            sync.Mutex
	latest        *room.Room
	phase         Phase
	removed       bool
	repairedValue string // last malformed position we tried to repair

	clock *clockController

	sub      *roomstore.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
	onChange func(*roomdto.SessionView)
}

// Attach subscribes to code on behalf of the named participant. The
// assigned color is fixed by the slot the participant occupies and
// never changes for the lifetime of the session.
func Attach(ctx context.Context, store *roomstore.Store, rooms *lobby.Manager, code, playerName string, color room.Color, opts Options) (*Session, error) {
	if store == nil || rooms == nil || code == "" || playerName == "" {
		return nil, room.ErrInvalidArgs
	}
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	cat := opts.Messages
	if cat == nil {
		cat = msgcat.Default()
	}

	// the subscription outlives the attach call; it inherits values
	// but not cancellation from the caller's context
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := store.Subscribe(subCtx, code)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		code:     code,
		name:     playerName,
		color:    color,
		store:    store,
		rooms:    rooms,
		cat:      cat,
		phase:    PhaseWaitingForOpponent,
		sub:      sub,
		cancel:   cancel,
		done:     make(chan struct{}),
		onChange: opts.OnChange,
	}
	s.clock = newClockController(clk, store, code, s.snapshotLocked)

	go s.loop()
	obslog.L().Info("session_attach",
		zap.String("session_id", s.ID),
		zap.String("code", code),
		zap.String("player", playerName),
		zap.String("color", string(color)),
	)
	return s, nil
}

func (s *Session) loop() {
	defer close(s.done)
	for r := range s.sub.Snapshots() {
		s.apply(r)
	}
}

// apply is the reducer: latest local view × incoming snapshot → new
// local view. All phase truth lives here.
func (s *Session) apply(r *room.Room) {
	if r == nil {
		s.mu.Lock()
		s.latest = nil
		s.removed = true
		s.phase = PhaseWaitingForOpponent
		view := s.viewLocked()
		s.mu.Unlock()
		s.clock.halt()
		s.notify(view)
		return
	}

	// both slots vacant: the room is garbage and any observer removes
	// it; duplicates are idempotent
	if r.Empty() {
		if err := s.store.Remove(context.Background(), s.code); err != nil {
			obslog.L().Warn("room_remove_error", zap.String("code", s.code), zap.Error(err))
		} else {
			obslog.L().Info("room_remove",
				zap.String("code", s.code),
				zap.String("session_id", s.ID),
				zap.String("reason", "both_slots_empty"),
			)
		}
		return
	}

	if s.repairPosition(r) {
		return
	}

	s.mu.Lock()
	s.latest = r
	s.removed = false
	switch {
	case r.Player1 == nil || r.Player2 == nil:
		s.phase = PhaseWaitingForOpponent
	case r.Winner != "":
		s.phase = PhaseGameOver
	case r.Turn == s.color:
		s.phase = PhaseMyTurn
	default:
		s.phase = PhaseOpponentTurn
	}
	view := s.viewLocked()
	s.mu.Unlock()

	s.clock.observe(r)
	s.notify(view)
}

// repairPosition overwrites an unparseable position with a fresh
// starting position. At most one repair per distinct bad value, so a
// store that keeps rejecting the repair cannot drive a write loop.
func (s *Session) repairPosition(r *room.Room) bool {
	if _, err := rules.SideToMove(r.Position); err == nil {
		return false
	}
	s.mu.Lock()
	already := s.repairedValue == r.Position
	s.repairedValue = r.Position
	s.mu.Unlock()
	if already {
		return true
	}
	start := rules.StartingPosition()
	turn := room.White
	obslog.L().Warn("room_position_repair",
		zap.String("code", s.code),
		zap.String("session_id", s.ID),
	)
	if err := s.store.Patch(context.Background(), s.code, room.Patch{Position: &start, Turn: &turn}); err != nil {
		obslog.L().Warn("room_position_repair_error", zap.String("code", s.code), zap.Error(err))
	}
	return true
}

func (s *Session) notify(view *roomdto.SessionView) {
	if s.onChange != nil {
		s.onChange(view)
	}
}

// snapshotLocked hands the clock controller the latest snapshot.
func (s *Session) snapshotLocked() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Snapshot returns a copy of the latest known room record, or nil
// before the first delivery or after removal.
func (s *Session) Snapshot() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Clone()
}

// Phase returns the current derived state machine state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// View builds the current presentation projection.
func (s *Session) View() *roomdto.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// ProposeMove validates and commits a move. Ownership is re-validated
// against the latest authoritative snapshot immediately before the
// write, not against any state cached at UI level, so a stale local
// view can never produce a store write. On success {position, turn,
// winner} go out as a single patch.
func (s *Session) ProposeMove(ctx context.Context, from, to, promotion string) error {
	s.mu.Lock()
	r := s.latest
	phase := s.phase
	s.mu.Unlock()

	if r == nil {
		return room.ErrRoomNotFound
	}
	if r.Winner != "" {
		return room.ErrGameOver
	}
	if phase != PhaseMyTurn || r.Turn != s.color {
		obslog.L().Warn("move_stale_turn",
			zap.String("code", s.code),
			zap.String("session_id", s.ID),
			zap.String("phase", string(phase)),
			zap.String("turn", string(r.Turn)),
		)
		return room.ErrStaleTurn
	}
	if side, err := rules.SideToMove(r.Position); err != nil {
		return err
	} else if side != s.color {
		// turn field and position disagree about the mover; never
		// write on top of that
		return room.ErrStaleTurn
	}

	next, verdict, err := rules.ApplyMove(r.Position, from, to, promotion)
	if err != nil {
		return err
	}

	turn := s.color.Other()
	p := room.Patch{Position: &next, Turn: &turn}
	winner := ""
	switch verdict.Verdict {
	case rules.Checkmate:
		winner = s.name
		p.SetWinner = true
		p.Winner = winner
	case rules.Draw:
		winner = room.DrawWinner
		p.SetWinner = true
		p.Winner = winner
	}
	if err := s.store.Patch(ctx, s.code, p); err != nil {
		return err
	}
	obslog.L().Info("move_commit",
		zap.String("code", s.code),
		zap.String("session_id", s.ID),
		zap.String("move", from+to+promotion),
		zap.String("next_turn", string(turn)),
		zap.String("winner", winner),
	)
	return nil
}

// LegalDestinations lists where the piece on square may move, for
// highlighting. Empty outside MyTurn, mirroring the UI gate.
func (s *Session) LegalDestinations(square string) ([]string, error) {
	s.mu.Lock()
	r := s.latest
	phase := s.phase
	s.mu.Unlock()
	if r == nil || phase != PhaseMyTurn {
		return nil, nil
	}
	return rules.LegalDestinations(r.Position, square)
}

// Resign forfeits the game: the opponent's name becomes the winner.
// Both sides resigning concurrently converge by last write wins, and
// either order leaves a valid decided game.
func (s *Session) Resign(ctx context.Context) error {
	s.mu.Lock()
	r := s.latest
	s.mu.Unlock()
	if r == nil {
		return room.ErrRoomNotFound
	}
	if r.Winner != "" {
		return room.ErrGameOver
	}
	opp := r.PlayerByColor(s.color.Other())
	if opp == nil {
		return room.ErrNoOpponent
	}
	if err := s.store.Patch(ctx, s.code, room.Patch{SetWinner: true, Winner: opp.Name}); err != nil {
		return err
	}
	obslog.L().Info("session_resign",
		zap.String("code", s.code),
		zap.String("session_id", s.ID),
		zap.String("winner", opp.Name),
	)
	return nil
}

// Leave vacates this client's slot and detaches the session.
func (s *Session) Leave(ctx context.Context) error {
	if err := s.rooms.Leave(ctx, s.code, s.color); err != nil {
		return err
	}
	return s.Close()
}

// PlayAgain resets a decided game for a rematch, preserving both
// participants and re-arming the clocks with the room's configured
// budget.
func (s *Session) PlayAgain(ctx context.Context) error {
	s.mu.Lock()
	r := s.latest
	s.mu.Unlock()
	if r == nil {
		return room.ErrRoomNotFound
	}
	if r.Winner == "" {
		return room.ErrGameInProgress
	}
	return s.rooms.PlayAgain(ctx, s.code, r.TimeControl)
}

// Close stops the clock controller and the subscription. In-flight
// writes are not cancelled; only future callbacks are suppressed.
func (s *Session) Close() error {
	s.clock.halt()
	err := s.sub.Close()
	s.cancel()
	<-s.done
	obslog.L().Info("session_detach", zap.String("session_id", s.ID), zap.String("code", s.code))
	return err
}

// Describe maps an operation error onto the presenter-facing DTO.
// Store failures surface as retryable; everything else is a
// user-correctable rejection.
func Describe(err error, cat *msgcat.Catalog) roomdto.DomainError {
	if cat == nil {
		cat = msgcat.Default()
	}
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return roomdto.DomainError{Code: "room_not_found", Message: err.Error()}
	case errors.Is(err, room.ErrRoomFull):
		return roomdto.DomainError{Code: "room_full", Message: err.Error()}
	case errors.Is(err, room.ErrIllegalMove):
		return roomdto.DomainError{Code: "illegal_move", Message: cat.MustRender("cli.move_rejected", nil)}
	case errors.Is(err, room.ErrStaleTurn):
		return roomdto.DomainError{Code: "stale_turn", Message: cat.MustRender("cli.not_your_turn", nil)}
	case errors.Is(err, room.ErrGameOver):
		return roomdto.DomainError{Code: "game_over", Message: cat.MustRender("cli.game_over", nil)}
	case errors.Is(err, room.ErrGameInProgress),
		errors.Is(err, room.ErrNoOpponent),
		errors.Is(err, room.ErrInvalidArgs),
		errors.Is(err, room.ErrMalformedPosition):
		return roomdto.DomainError{Code: "rejected", Message: err.Error()}
	}
	return roomdto.DomainError{Code: "store_unavailable", Message: err.Error(), Retryable: true}
}

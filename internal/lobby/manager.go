// Package lobby manages room lifecycle: creation with a fresh 4-digit
// code, admitting the second participant, clearing participant slots,
// and resetting a finished room for a rematch.
package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/chess-rooms-go/internal/obslog"
	"github.com/kapu/chess-rooms-go/internal/room"
	"github.com/kapu/chess-rooms-go/internal/roomstore"
	"github.com/kapu/chess-rooms-go/internal/rules"
)

const codeAttempts = 5

type Manager struct {
	store *roomstore.Store
}

func NewManager(store *roomstore.Store) *Manager {
	return &Manager{store: store}
}

// CreateRoom allocates a non-colliding code and writes the initial
// record: creator as player1/white, fresh game, white to move, no
// winner. The returned room carries the code for the creator to share.
func (m *Manager) CreateRoom(ctx context.Context, playerName, timeControl string) (*room.Room, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, room.ErrInvalidArgs
	}
	tc, timers, err := normalizeTimeControl(timeControl)
	if err != nil {
		return nil, err
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := genCode()
		if err != nil {
			return nil, err
		}
		r := &room.Room{
			Code:        code,
			Player1:     &room.Player{Name: name, Color: room.White},
			Position:    rules.StartingPosition(),
			Turn:        room.White,
			TimeControl: tc,
		}
		if timers != nil {
			t := *timers
			r.Timers = &t
		}
		err = m.store.Create(ctx, r)
		if errors.Is(err, room.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		obslog.L().Info("room_create",
			zap.String("code", code),
			zap.String("player", name),
			zap.String("time_control", tc),
		)
		return r, nil
	}
	return nil, fmt.Errorf("failed to allocate room code")
}

// JoinRoom admits playerName as player2/black. Fails with
// ErrRoomNotFound or ErrRoomFull.
func (m *Manager) JoinRoom(ctx context.Context, code, playerName string) (*room.Room, error) {
	name := strings.TrimSpace(playerName)
	code = strings.TrimSpace(code)
	if name == "" || code == "" {
		return nil, room.ErrInvalidArgs
	}
	r, err := m.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Player2 != nil {
		return nil, room.ErrRoomFull
	}
	p := &room.Player{Name: name, Color: room.Black}
	if err := m.store.Patch(ctx, code, room.Patch{SetPlayer2: true, Player2: p}); err != nil {
		return nil, err
	}
	r.Player2 = p
	obslog.L().Info("room_join", zap.String("code", code), zap.String("player", name))
	return r, nil
}

// Leave vacates the given color's participant slot. When the peer is
// already gone the room is garbage, and this observer removes it;
// removal is advisory and racing duplicates are harmless.
func (m *Manager) Leave(ctx context.Context, code string, color room.Color) error {
	p := room.Patch{}
	if color == room.White {
		p.SetPlayer1 = true
	} else {
		p.SetPlayer2 = true
	}
	if err := m.store.Patch(ctx, code, p); err != nil {
		return err
	}
	obslog.L().Info("room_leave", zap.String("code", code), zap.String("color", string(color)))

	r, err := m.store.Get(ctx, code)
	if err == nil && r.Empty() {
		if rerr := m.store.Remove(ctx, code); rerr != nil {
			obslog.L().Warn("room_remove_error", zap.String("code", code), zap.Error(rerr))
		} else {
			obslog.L().Info("room_remove", zap.String("code", code), zap.String("reason", "empty_on_leave"))
		}
	}
	return nil
}

// PlayAgain resets position, turn, winner, and timers to a fresh game
// while leaving both participant slots untouched. An empty timeControl
// keeps the room's configured one.
func (m *Manager) PlayAgain(ctx context.Context, code, timeControl string) error {
	r, err := m.store.Get(ctx, code)
	if err != nil {
		return err
	}
	if strings.TrimSpace(timeControl) == "" {
		timeControl = r.TimeControl
	}
	tc, timers, err := normalizeTimeControl(timeControl)
	if err != nil {
		return err
	}
	start := rules.StartingPosition()
	turn := room.White
	p := room.Patch{
		Position:    &start,
		Turn:        &turn,
		SetWinner:   true, // empty winner clears the field
		TimeControl: &tc,
	}
	if timers != nil {
		p.TimerWhite = &timers.White
		p.TimerBlack = &timers.Black
	} else {
		p.ClearTimers = true
	}
	if err := m.store.Patch(ctx, code, p); err != nil {
		return err
	}
	obslog.L().Info("room_rematch", zap.String("code", code), zap.String("time_control", tc))
	return nil
}

func normalizeTimeControl(tc string) (string, *room.Timers, error) {
	tc = strings.TrimSpace(tc)
	if tc == "" || tc == room.TimeControlUnlimited {
		return room.TimeControlUnlimited, nil, nil
	}
	n, err := strconv.Atoi(tc)
	if err != nil || n <= 0 {
		return "", nil, fmt.Errorf("%w: time control %q", room.ErrInvalidArgs, tc)
	}
	return strconv.Itoa(n), &room.Timers{White: n, Black: n}, nil
}

func genCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(1000+n.Int64(), 10), nil
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kapu/chess-rooms-go/internal/obslog"
	"github.com/kapu/chess-rooms-go/internal/room"
	"github.com/kapu/chess-rooms-go/internal/roomstore"
	"github.com/kapu/chess-rooms-go/internal/rules"
)

const tickWriteTimeout = 5 * time.Second

// clockController is this client's countdown process. It runs only
// while the room has a finite time control, no winner, both seats
// occupied, and at least one accepted move (the arming condition).
// Both clients run one; the redundancy is intentional. Remaining time
// is always recomputed as baseline-minus-elapsed from the value the
// shared record held at the last turn change, so the two controllers
// write the same monotonically non-increasing values and converge by
// last write wins instead of double-counting.
type clockController struct {
	clock    clockwork.Clock
	store    *roomstore.Store
	code     string
	snapshot func() *room.Room

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	side     room.Color
	baseline int
	basedAt  time.Time
}

func newClockController(clock clockwork.Clock, store *roomstore.Store, code string, snapshot func() *room.Room) *clockController {
	return &clockController{clock: clock, store: store, code: code, snapshot: snapshot}
}

// observe re-evaluates the gating conditions against a snapshot. The
// first accepted move arms the loop; a turn change rebases the
// countdown onto the stored value for the side now to move; a winner,
// a vacated seat, or a rematch reset halts it.
func (c *clockController) observe(r *room.Room) {
	armed := r != nil && r.Timers != nil && r.Winner == "" &&
		r.Player1 != nil && r.Player2 != nil &&
		r.Position != rules.StartingPosition()
	if !armed {
		c.halt()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.side != r.Turn {
		c.side = r.Turn
		c.baseline = r.Timers.White
		if r.Turn == room.Black {
			c.baseline = r.Timers.Black
		}
		c.basedAt = c.clock.Now()
	}
	if !c.running {
		c.running = true
		c.stop = make(chan struct{})
		go c.run(c.stop)
	}
}

func (c *clockController) halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stop)
		c.running = false
	}
}

func (c *clockController) run(stop chan struct{}) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if c.tick() {
				c.halt()
				return
			}
		}
	}
}

// tick publishes the recomputed remaining time for the side to move,
// or the timeout verdict when it crosses zero. Returns true when the
// loop should stop.
func (c *clockController) tick() bool {
	r := c.snapshot()
	if r == nil || r.Timers == nil || r.Winner != "" {
		return true
	}

	c.mu.Lock()
	side := c.side
	remaining := c.baseline - int(c.clock.Since(c.basedAt)/time.Second)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), tickWriteTimeout)
	defer cancel()

	if remaining <= 0 {
		// flag fall: the non-expiring side wins. Any client that
		// recomputes after the fact concurs, so the duplicate write
		// from the peer's controller is the same value.
		opp := r.PlayerByColor(side.Other())
		if opp == nil {
			return true
		}
		zero := 0
		p := room.Patch{SetWinner: true, Winner: opp.Name}
		if side == room.White {
			p.TimerWhite = &zero
		} else {
			p.TimerBlack = &zero
		}
		if err := c.store.Patch(ctx, c.code, p); err != nil {
			obslog.L().Warn("clock_flag_write_error", zap.String("code", c.code), zap.Error(err))
			return false
		}
		obslog.L().Info("clock_flag",
			zap.String("code", c.code),
			zap.String("expired", string(side)),
			zap.String("winner", opp.Name),
		)
		return true
	}

	p := room.Patch{}
	if side == room.White {
		p.TimerWhite = &remaining
	} else {
		p.TimerBlack = &remaining
	}
	if err := c.store.Patch(ctx, c.code, p); err != nil {
		obslog.L().Warn("clock_tick_write_error", zap.String("code", c.code), zap.Error(err))
	}
	return false
}

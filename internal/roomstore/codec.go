package roomstore

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/kapu/chess-rooms-go/internal/obslog"
	"github.com/kapu/chess-rooms-go/internal/room"
)

// The closed field vocabulary of the room hash. The codec never reads
// or writes anything outside this set; unknown fields in a record are
// ignored on decode.
const (
	fieldCode       = "code"
	fieldPlayer1    = "player1"
	fieldPlayer2    = "player2"
	fieldPosition   = "position"
	fieldTurn       = "turn"
	fieldWinner     = "winner"
	fieldControl    = "time_control"
	fieldTimerWhite = "timer_white"
	fieldTimerBlack = "timer_black"
)

func encodeRoom(r *room.Room) map[string]any {
	f := map[string]any{
		fieldCode:     r.Code,
		fieldPosition: r.Position,
		fieldTurn:     string(r.Turn),
		fieldControl:  r.TimeControl,
	}
	if r.Player1 != nil {
		f[fieldPlayer1] = encodePlayer(r.Player1)
	}
	if r.Player2 != nil {
		f[fieldPlayer2] = encodePlayer(r.Player2)
	}
	if r.Winner != "" {
		f[fieldWinner] = r.Winner
	}
	if r.Timers != nil {
		f[fieldTimerWhite] = strconv.Itoa(r.Timers.White)
		f[fieldTimerBlack] = strconv.Itoa(r.Timers.Black)
	}
	return f
}

func encodePatch(p room.Patch) (set map[string]any, del []string) {
	set = make(map[string]any)
	if p.SetPlayer1 {
		if p.Player1 != nil {
			set[fieldPlayer1] = encodePlayer(p.Player1)
		} else {
			del = append(del, fieldPlayer1)
		}
	}
	if p.SetPlayer2 {
		if p.Player2 != nil {
			set[fieldPlayer2] = encodePlayer(p.Player2)
		} else {
			del = append(del, fieldPlayer2)
		}
	}
	if p.Position != nil {
		set[fieldPosition] = *p.Position
	}
	if p.Turn != nil {
		set[fieldTurn] = string(*p.Turn)
	}
	if p.SetWinner {
		if p.Winner != "" {
			set[fieldWinner] = p.Winner
		} else {
			del = append(del, fieldWinner)
		}
	}
	if p.TimeControl != nil {
		set[fieldControl] = *p.TimeControl
	}
	if p.ClearTimers {
		del = append(del, fieldTimerWhite, fieldTimerBlack)
	} else {
		if p.TimerWhite != nil {
			set[fieldTimerWhite] = strconv.Itoa(*p.TimerWhite)
		}
		if p.TimerBlack != nil {
			set[fieldTimerBlack] = strconv.Itoa(*p.TimerBlack)
		}
	}
	return set, del
}

func encodePlayer(p *room.Player) string {
	raw, _ := json.Marshal(p)
	return string(raw)
}

func decodePlayer(code, slot, raw string) *room.Player {
	if raw == "" {
		return nil
	}
	var p room.Player
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Name == "" {
		// a garbled slot is treated as vacant rather than trusted
		obslog.L().Warn("room_player_decode_error",
			zap.String("code", code),
			zap.String("slot", slot),
		)
		return nil
	}
	return &p
}

func decodeRoom(code string, raw map[string]string) *room.Room {
	r := &room.Room{
		Code:        code,
		Player1:     decodePlayer(code, fieldPlayer1, raw[fieldPlayer1]),
		Player2:     decodePlayer(code, fieldPlayer2, raw[fieldPlayer2]),
		Position:    raw[fieldPosition],
		Turn:        room.Color(raw[fieldTurn]),
		Winner:      raw[fieldWinner],
		TimeControl: raw[fieldControl],
	}
	if r.Turn != room.Black {
		r.Turn = room.White
	}
	if r.TimeControl == "" {
		r.TimeControl = room.TimeControlUnlimited
	}
	w, werr := strconv.Atoi(raw[fieldTimerWhite])
	b, berr := strconv.Atoi(raw[fieldTimerBlack])
	if werr == nil && berr == nil {
		r.Timers = &room.Timers{White: w, Black: b}
	}
	return r
}

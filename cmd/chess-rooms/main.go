package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	appcfg "github.com/kapu/chess-rooms-go/internal/config"
	"github.com/kapu/chess-rooms-go/internal/lobby"
	"github.com/kapu/chess-rooms-go/internal/msgcat"
	"github.com/kapu/chess-rooms-go/internal/obslog"
	"github.com/kapu/chess-rooms-go/internal/room"
	"github.com/kapu/chess-rooms-go/internal/roomstore"
	"github.com/kapu/chess-rooms-go/internal/rules"
	"github.com/kapu/chess-rooms-go/internal/session"
	"github.com/kapu/chess-rooms-go/pkg/roomdto"
)

func main() {
	var (
		name    = flag.String("name", "", "player name")
		joinTo  = flag.String("join", "", "4-digit room code to join")
		create  = flag.Bool("create", false, "create a new room")
		timeCtl = flag.String("time", "", "time control: \"unlimited\" or seconds per side")
	)
	flag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}
	store, err := roomstore.Open(cfg.RedisURL)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer store.Close()
	rooms := lobby.NewManager(store)

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "a -name is required")
		os.Exit(2)
	}

	ctx := context.Background()
	var code string
	var color room.Color
	switch {
	case *create:
		tc := *timeCtl
		if tc == "" {
			tc = cfg.DefaultTimeControl
		}
		r, err := rooms.CreateRoom(ctx, *name, tc)
		if err != nil {
			fail(err, cat)
		}
		code, color = r.Code, room.White
		fmt.Println(cat.MustRender("cli.created", map[string]string{"Code": code}))
	case *joinTo != "":
		r, err := rooms.JoinRoom(ctx, *joinTo, *name)
		if err != nil {
			fail(err, cat)
		}
		code, color = r.Code, room.Black
		fmt.Println(cat.MustRender("cli.joined", map[string]string{
			"Code": code, "Name": *name, "Color": string(color),
		}))
	default:
		fmt.Fprintln(os.Stderr, "specify -create or -join CODE")
		os.Exit(2)
	}

	sess, err := session.Attach(ctx, store, rooms, code, *name, color, session.Options{
		Messages: cat,
		OnChange: render,
	})
	if err != nil {
		fail(err, cat)
	}

	fmt.Println(cat.MustRender("cli.help", nil))
	repl(ctx, sess, cat)
}

// render redraws the board and status line on every snapshot. It is
// the whole rendering surface: read-only over the view projection.
func render(v *roomdto.SessionView) {
	fmt.Println()
	if v.Position != "" {
		if board, err := rules.BoardASCII(v.Position); err == nil {
			fmt.Print(board)
		}
	}
	fmt.Printf("[%s] %s (%s) vs %s  white %s  black %s\n",
		v.Code, v.OwnName, v.OwnColor, orWaiting(v.OpponentName), v.WhiteClock, v.BlackClock)
	if v.Banner != "" {
		fmt.Println(v.Banner)
	} else if v.MyTurn {
		fmt.Printf("your move (%s)\n", v.OwnColor)
	} else {
		fmt.Printf("%s to move\n", v.Turn)
	}
	fmt.Print("> ")
}

func orWaiting(s string) string {
	if s == "" {
		return "(waiting)"
	}
	return s
}

func repl(ctx context.Context, sess *session.Session, cat *msgcat.Catalog) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(strings.ToLower(strings.TrimSpace(scanner.Text())))
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		var err error
		switch fields[0] {
		case "move":
			err = doMove(ctx, sess, fields[1:])
		case "moves":
			if len(fields) != 2 {
				fmt.Println(cat.MustRender("cli.help", nil))
				break
			}
			var dests []string
			dests, err = sess.LegalDestinations(fields[1])
			if err == nil {
				fmt.Println(strings.Join(dests, " "))
			}
		case "resign":
			if err = sess.Resign(ctx); err == nil {
				fmt.Println(cat.MustRender("cli.resigned", nil))
			}
		case "again":
			err = sess.PlayAgain(ctx)
		case "leave":
			if err = sess.Leave(ctx); err == nil {
				fmt.Println(cat.MustRender("cli.left", nil))
				return
			}
		case "quit", "exit":
			_ = sess.Close()
			return
		default:
			fmt.Println(cat.MustRender("cli.help", nil))
		}
		if err != nil {
			fmt.Println(session.Describe(err, cat).Message)
		}
		fmt.Print("> ")
	}
	_ = sess.Close()
}

// doMove accepts "move e2e4", "move e2 e4", and an optional trailing
// promotion letter ("move e7e8 q" or "move e7e8q").
func doMove(ctx context.Context, sess *session.Session, args []string) error {
	joined := strings.Join(args, "")
	if len(joined) < 4 || len(joined) > 5 {
		return room.ErrIllegalMove
	}
	from, to, promo := joined[0:2], joined[2:4], joined[4:]
	return sess.ProposeMove(ctx, from, to, promo)
}

func fail(err error, cat *msgcat.Catalog) {
	fmt.Fprintln(os.Stderr, session.Describe(err, cat).Message)
	os.Exit(1)
}

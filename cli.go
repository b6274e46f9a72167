// cli.go
//
// Terminal front ends.
//   - runLocal: hot-seat game, one terminal plays both sides through the
//     controller directly.
//   - runRemote: one seat of a server session through internal/client.
//
// Moves are typed in board notation: "b5 b6", "b5-b6", "c4xc2" or "b5b6".

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/client"
	"github.com/robalobadob/wolfsheep/internal/errs"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/protocol"
	"github.com/robalobadob/wolfsheep/internal/session"
)

const localHelp = `commands:
  <from> <to>   move, e.g. "b5 b6" or "c4xc2"
  end           stop a capture chain
  moves         list legal moves
  resign        give up for the side to move
  new           start over
  quit          leave
`

// splitMove extracts the two position names of a typed move.
func splitMove(line string) (from, to string, ok bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	line = strings.NewReplacer("-", " ", "x", " ", "#", " ", ",", " ").Replace(line)
	f := strings.Fields(line)
	switch {
	case len(f) == 2:
		return f[0], f[1], true
	case len(f) == 1 && len(f[0]) == 4:
		return f[0][:2], f[0][2:], true
	}
	return "", "", false
}

func parseMove(b *board.Topology, line string) (game.Move, error) {
	from, to, ok := splitMove(line)
	if !ok {
		return game.Move{}, fmt.Errorf("cannot read %q as a move", line)
	}
	f, err := b.Parse(from)
	if err != nil {
		return game.Move{}, errs.Wrap(errs.CodeIllegalMove, game.ReasonUnknownPosition, err)
	}
	t, err := b.Parse(to)
	if err != nil {
		return game.Move{}, errs.Wrap(errs.CodeIllegalMove, game.ReasonUnknownPosition, err)
	}
	return game.Move{From: f, To: t}, nil
}

func prompt(snap game.Snapshot) string {
	if snap.Chain != "" {
		return fmt.Sprintf("%s, chain at %s (end to stop)> ", snap.Turn, snap.Chain)
	}
	return fmt.Sprintf("%s to move> ", snap.Turn)
}

// runLocal plays a hot-seat game on in/out until the game ends or the
// input closes.
func runLocal(b *board.Topology, r game.Rules, in io.Reader, out io.Writer) error {
	ctrl, err := game.NewController(b, r)
	if err != nil {
		return err
	}
	ctrl.Subscribe(func(ev game.Event) {
		if ev.Outcome.Notation != "" {
			fmt.Fprintln(out, ev.Outcome.Notation)
		}
	})

	sc := bufio.NewScanner(in)
	fmt.Fprint(out, localHelp)
	for {
		snap := ctrl.Current()
		fmt.Fprint(out, game.Render(b, snap))
		if snap.Result.Over() {
			fmt.Fprintf(out, "game over: %s\n", snap.Result)
			return nil
		}
		fmt.Fprint(out, prompt(snap))
		if !sc.Scan() {
			return sc.Err()
		}

		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		case "help", "?":
			fmt.Fprint(out, localHelp)
			continue
		case "moves":
			for _, e := range ctrl.LegalMoves() {
				fmt.Fprintln(out, " ", game.Notation(b, e))
			}
			continue
		case "end":
			_, err = ctrl.EndTurn(game.SeatBoth)
		case "resign":
			_, err = ctrl.Forfeit(snap.Turn)
		case "new":
			err = ctrl.Reset()
		default:
			var m game.Move
			if m, err = parseMove(b, line); err == nil {
				_, err = ctrl.ProposeMove(m)
			}
		}
		if err != nil {
			if reason := errs.ReasonOf(err); reason != "" {
				fmt.Fprintf(out, "illegal: %s\n", reason)
			} else {
				fmt.Fprintln(out, err)
			}
		}
	}
}

type remoteOptions struct {
	Seat     game.Seat
	Name     string
	Password string
	Create   session.CreateRequest
}

// runRemote plays one seat of a server session from the terminal. target is
// a session websocket URL or a server base URL to create a session on.
func runRemote(b *board.Topology, target string, o remoteOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := target
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, err := client.CreateSession(ctx, target, o.Create)
		if err != nil {
			return err
		}
		url = u
		fmt.Printf("created session; others join with --connect %s\n", url)
	}

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dctx, url, protocol.JoinRequest{DesiredRole: o.Seat, Name: o.Name, Password: o.Password})
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("joined %s as %s\n", c.SessionID(), c.Seat())
	fmt.Print(game.Render(b, c.Snapshot()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.Events():
			if ev.Type == client.EventDisconnected {
				if err := reconnect(ctx, c); err != nil {
					return err
				}
				continue
			}
			printEvent(b, c, ev)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := remoteCommand(c, b, line); quit {
				return nil
			}
		}
	}
}

func reconnect(ctx context.Context, c *client.Client) error {
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		fmt.Printf("connection lost; reconnecting (%d)\n", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = c.Reconnect(rctx)
		cancel()
		if err == nil {
			fmt.Println("reconnected")
			return nil
		}
	}
	return fmt.Errorf("reconnect: %w", err)
}

func remoteCommand(c *client.Client, b *board.Topology, line string) (quit bool) {
	var err error
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return false
	case "q", "quit", "exit":
		return true
	case "end":
		err = c.EndTurn()
	case "resign":
		err = c.Forfeit()
	case "new":
		err = c.Reset()
	case "sync":
		err = c.Resync()
	case "board":
		fmt.Print(game.Render(b, c.Snapshot()))
	default:
		from, to, ok := splitMove(line)
		if !ok {
			fmt.Println("commands: <from> <to>, end, resign, new, sync, board, quit")
			return false
		}
		err = c.Move(from, to)
	}
	if err != nil {
		fmt.Println(err)
	}
	return false
}

func printEvent(b *board.Topology, c *client.Client, ev client.Event) {
	switch ev.Type {
	case protocol.MsgMoveResult:
		switch {
		case !ev.Result.Accepted:
			fmt.Printf("illegal: %s\n", ev.Result.Reason)
		case ev.Desync:
			fmt.Println("out of sync; resyncing")
		default:
			fmt.Println(ev.Result.Notation)
			fmt.Print(game.Render(b, c.Snapshot()))
		}
	case protocol.MsgFullSnapshot:
		fmt.Print(game.Render(b, c.Snapshot()))
	case protocol.MsgGameOver:
		fmt.Printf("game over: %s (%s)\n", ev.GameOver.Result, ev.GameOver.Reason)
	case protocol.MsgPlayers:
		names := make([]string, 0, len(ev.Players))
		for _, p := range ev.Players {
			s := p.Name + " (" + p.Seat.String()
			if !p.Connected {
				s += ", away"
			}
			names = append(names, s+")")
		}
		fmt.Println("players:", strings.Join(names, ", "))
	case protocol.MsgError:
		fmt.Printf("server error: %s %s\n", ev.Error.Reason, ev.Error.Message)
	}
}

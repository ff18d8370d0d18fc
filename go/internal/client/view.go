package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/turnclock"
)

// view renders room and chat updates as lines of text. tick runs on the
// watcher goroutine, so every method locks.
type view struct {
	mu  sync.Mutex
	out io.Writer
	me  string

	names      map[string]string
	lastStatus string
	seen       map[string]bool
	lastSecond int
}

func newView(out io.Writer, me string) *view {
	return &view{
		out:        out,
		me:         me,
		names:      map[string]string{},
		seen:       map[string]bool{},
		lastSecond: -1,
	}
}

func (v *view) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func (v *view) room(r *models.Room) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if r == nil {
		fmt.Fprintln(v.out, "The room was closed.")
		return
	}
	v.names = r.Players
	status := describeRoom(r, v.me)
	if status != v.lastStatus {
		fmt.Fprintln(v.out, status)
		v.lastStatus = status
	}
}

func (v *view) chat(msgs []models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, m := range msgs {
		if v.seen[m.ID] {
			continue
		}
		v.seen[m.ID] = true
		if m.IsSystem() {
			fmt.Fprintf(v.out, "* %s\n", m.Text)
		} else {
			fmt.Fprintf(v.out, "[%s] %s\n", m.SenderName, m.Text)
		}
	}
}

func (v *view) tick(s turnclock.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !s.Active() {
		v.lastSecond = -1
		return
	}
	sec := s.SecondsRemaining
	if sec == v.lastSecond || !countdownMark(sec) {
		return
	}
	v.lastSecond = sec
	who := v.names[s.CurrentPlayerID]
	if s.CurrentPlayerID == v.me {
		who = "you"
	}
	fmt.Fprintf(v.out, "  %ds left for %s\n", sec, who)
}

func countdownMark(sec int) bool {
	return sec <= 5 || sec%15 == 0
}

// describeRoom summarizes a room from viewer's seat.
func describeRoom(r *models.Room, viewer string) string {
	var b strings.Builder
	g := r.Game

	if !g.IsActive() {
		fmt.Fprintf(&b, "Room %s lobby (%d/%d):", r.ID, len(r.Players), r.MaxPlayers)
		for _, id := range sortedIDs(r.Players) {
			b.WriteString(" " + r.PlayerName(id))
			var tags []string
			if r.IsHost(id) {
				tags = append(tags, "host")
			}
			if r.PlayerStatus[id] {
				tags = append(tags, "ready")
			}
			if len(tags) > 0 {
				b.WriteString(" (" + strings.Join(tags, ", ") + ")")
			}
		}
		if g != nil && g.GameEnded {
			if g.IsDraw() {
				b.WriteString(". Last game was a draw.")
			} else {
				fmt.Fprintf(&b, ". Last game won by %s.", r.PlayerName(g.WinnerID))
			}
		}
		return b.String()
	}

	current := g.CurrentPlayerID()
	who := r.PlayerName(current) + "'s"
	if current == viewer {
		who = "your"
	}
	fmt.Fprintf(&b, "Round %d", g.Round)
	if g.IsFinalRound {
		b.WriteString(" (final)")
	}
	fmt.Fprintf(&b, ", %s turn.", who)

	visible := g.VisibleEmojis(viewer)
	var seen []string
	for _, id := range g.PlayersOrder {
		symbol, ok := visible[id]
		if !ok {
			continue
		}
		entry := r.PlayerName(id) + " " + symbol
		if g.IsEliminated(id) {
			entry += " (out)"
		}
		seen = append(seen, entry)
	}
	if len(seen) > 0 {
		b.WriteString(" You see: " + strings.Join(seen, ", ") + ".")
	}
	if g.IsEliminated(viewer) {
		b.WriteString(" You are out.")
	}
	return b.String()
}

func sortedIDs(players map[string]string) []string {
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// readLines streams lines from r until it ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

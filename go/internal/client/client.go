// Package client is the terminal front end. It talks to the configured store
// directly and keeps the signed-in player in a local session store.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/chat"
	"github.com/mcdev12/guessmoji/go/internal/game"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/players"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
	"github.com/mcdev12/guessmoji/go/internal/session"
	"github.com/mcdev12/guessmoji/go/internal/turnclock"
)

// ErrUsage means the command line did not match any command.
var ErrUsage = errors.New("usage: guessmoji register <name> <email> <password> | login <name> <password> | logout | whoami | create | join <code> | leave <code> | play <code>")

type Deps struct {
	Players *players.App
	Rooms   *rooms.Directory
	Engine  *game.Engine
	Chat    *chat.Log
	Session session.KV
	Clock   clockwork.Clock
	Out     io.Writer
	// Tick is the countdown refresh interval during play.
	Tick time.Duration
}

type Client struct {
	players *players.App
	rooms   *rooms.Directory
	engine  *game.Engine
	chat    *chat.Log
	kv      session.KV
	clock   clockwork.Clock
	out     io.Writer
	tick    time.Duration
}

func New(deps Deps) *Client {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Tick <= 0 {
		deps.Tick = turnclock.DefaultTick
	}
	return &Client{
		players: deps.Players,
		rooms:   deps.Rooms,
		engine:  deps.Engine,
		chat:    deps.Chat,
		kv:      deps.Session,
		clock:   deps.Clock,
		out:     deps.Out,
		tick:    deps.Tick,
	}
}

// Run executes one command line. play reads guesses and chat from in.
func (c *Client) Run(ctx context.Context, args []string, in io.Reader) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]
	switch {
	case cmd == "register" && len(rest) == 3:
		return c.Register(ctx, rest[0], rest[1], rest[2])
	case cmd == "login" && len(rest) == 2:
		return c.Login(ctx, rest[0], rest[1])
	case cmd == "logout" && len(rest) == 0:
		return c.Logout(ctx)
	case cmd == "whoami" && len(rest) == 0:
		return c.WhoAmI(ctx)
	case cmd == "create" && len(rest) == 0:
		_, err := c.Create(ctx)
		return err
	case cmd == "join" && len(rest) == 1:
		return c.Join(ctx, rest[0])
	case cmd == "leave" && len(rest) == 1:
		return c.Leave(ctx, rest[0])
	case cmd == "play" && len(rest) == 1:
		return c.Play(ctx, rest[0], in)
	default:
		return ErrUsage
	}
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	account, err := c.players.Register(ctx, players.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return err
	}
	return c.signIn(ctx, account)
}

func (c *Client) Login(ctx context.Context, name, password string) error {
	account, err := c.players.Login(ctx, name, password)
	if err != nil {
		return err
	}
	return c.signIn(ctx, account)
}

func (c *Client) signIn(ctx context.Context, account *models.PlayerAccount) error {
	id := session.Context{PlayerID: account.ID, PlayerName: account.Name}
	if err := id.Save(ctx, c.kv); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	fmt.Fprintf(c.out, "Signed in as %s.\n", account.Name)
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := session.Clear(ctx, c.kv); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	fmt.Fprintln(c.out, "Signed out.")
	return nil
}

func (c *Client) WhoAmI(ctx context.Context) error {
	id, err := session.Load(ctx, c.kv)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n", id.PlayerName, id.PlayerID)
	return nil
}

// Create opens a room with a fresh code, hosted by the signed-in player.
func (c *Client) Create(ctx context.Context) (*models.Room, error) {
	id, err := session.Load(ctx, c.kv)
	if err != nil {
		return nil, err
	}
	room, err := c.rooms.CreateRoomWithCode(ctx, id.PlayerID, id.PlayerName)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.out, "Created room %s. Share the code so others can join.\n", room.ID)
	return room, nil
}

func (c *Client) Join(ctx context.Context, code string) error {
	id, err := session.Load(ctx, c.kv)
	if err != nil {
		return err
	}
	result, err := c.rooms.JoinRoom(ctx, code, id.PlayerID, id.PlayerName)
	if err != nil {
		return err
	}
	switch result {
	case rooms.JoinResultSuccess:
		fmt.Fprintf(c.out, "Joined room %s.\n", code)
		return nil
	case rooms.JoinResultRoomNotFound:
		return models.ErrRoomNotFound
	case rooms.JoinResultRoomInactive:
		return models.ErrRoomInactive
	case rooms.JoinResultRoomFull:
		return models.ErrRoomFull
	default:
		return models.ErrAlreadyJoined
	}
}

func (c *Client) Leave(ctx context.Context, code string) error {
	id, err := session.Load(ctx, c.kv)
	if err != nil {
		return err
	}
	result, err := c.rooms.LeaveRoom(ctx, code, id.PlayerID)
	if err != nil {
		return err
	}
	switch result {
	case rooms.LeaveResultRoomDeleted:
		fmt.Fprintf(c.out, "Left room %s. The room was closed.\n", code)
	case rooms.LeaveResultLeft:
		fmt.Fprintf(c.out, "Left room %s.\n", code)
	default:
		fmt.Fprintf(c.out, "You are not in room %s.\n", code)
	}
	return nil
}

// Play follows a room until the player quits, leaves, stdin ends or the
// room goes away. While the signed-in player hosts the room this process
// also times out expired turns.
func (c *Client) Play(ctx context.Context, code string, in io.Reader) error {
	id, err := session.Load(ctx, c.kv)
	if err != nil {
		return err
	}
	room, err := c.rooms.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if !room.HasPlayer(id.PlayerID) {
		return models.ErrNotMember
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	roomFeed, err := c.rooms.SubscribeRoom(ctx, code)
	if err != nil {
		return err
	}
	defer roomFeed.Close()
	chatFeed, err := c.chat.Subscribe(ctx, code)
	if err != nil {
		return err
	}
	defer chatFeed.Close()

	v := newView(c.out, id.PlayerID)
	watched := make(chan *models.Room, 1)
	watcher := &turnclock.Watcher{
		Clock:  c.clock,
		Tick:   c.tick,
		OnTick: v.tick,
		IsHost: room.IsHost(id.PlayerID),
		Timeout: func(ctx context.Context, turn models.Turn) error {
			_, err := c.engine.HandleTimeout(ctx, code, turn)
			return err
		},
	}
	go watcher.Run(ctx, watched)

	fmt.Fprintf(c.out, "Playing in room %s. Type /help for commands.\n", code)
	lines := readLines(ctx, in)

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-roomFeed.Updates():
			if !ok {
				return roomFeed.Err()
			}
			turnclock.Offer(watched, r)
			v.room(r)
			if r == nil {
				return nil
			}
		case msgs, ok := <-chatFeed.Updates():
			if !ok {
				return chatFeed.Err()
			}
			v.chat(msgs)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := c.command(ctx, id, code, line)
			if err != nil {
				v.printf("! %v\n", err)
			}
			if done {
				return nil
			}
		}
	}
}

// command runs one line typed during play and reports whether play is over.
func (c *Client) command(ctx context.Context, id session.Context, code, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := c.chat.Send(ctx, code, id.PlayerID, id.PlayerName, line)
		return false, err
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	log.Debug().Str("command", cmd).Str("room_code", code).Msg("play command")

	switch cmd {
	case "guess", "g":
		_, err := c.engine.SubmitGuess(ctx, code, id.PlayerID, arg)
		return false, err
	case "start":
		_, err := c.engine.StartSession(ctx, code, id.PlayerID)
		return false, err
	case "end":
		_, err := c.engine.EndSession(ctx, code, id.PlayerID, arg)
		return false, err
	case "ready":
		return false, c.rooms.SetReady(ctx, code, id.PlayerID, true)
	case "unready":
		return false, c.rooms.SetReady(ctx, code, id.PlayerID, false)
	case "leave":
		return true, c.Leave(ctx, code)
	case "quit", "q":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, "/guess <emoji>  guess your own emoji on your turn")
		fmt.Fprintln(c.out, "/start          start the game (host)")
		fmt.Fprintln(c.out, "/end [player]   end the game, naming a winner or none for a draw (host)")
		fmt.Fprintln(c.out, "/ready /unready toggle your ready flag")
		fmt.Fprintln(c.out, "/leave /quit    leave the room, or just stop watching it")
		fmt.Fprintln(c.out, "anything else is sent to the chat")
		return false, nil
	default:
		return false, fmt.Errorf("unknown command /%s, try /help", cmd)
	}
}

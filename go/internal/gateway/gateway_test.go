package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/guessmoji/go/internal/chat"
	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/game"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/players"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

type harness struct {
	clock   *clockwork.FakeClock
	server  *httptest.Server
	rooms   *rooms.Directory
	engine  *game.Engine
	manager *ConnectionManager
	tokens  *TokenManager
}

func newHarness(t *testing.T, cfg HandlerConfig) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	st := store.New(store.NewMemoryBackend(), store.Options{MaxAttempts: 100})
	chatLog := chat.NewLog(st, clock, events.NopPublisher{})
	directory := rooms.NewDirectory(st, chatLog, events.NopPublisher{}, clock, rooms.DefaultConfig(), rand.New(rand.NewPCG(1, 2)))
	engine := game.NewEngine(st, chatLog, events.NopPublisher{}, clock, game.DefaultConfig(), rand.New(rand.NewPCG(3, 4)))
	playerApp := players.NewApp(players.NewStoreRepository(st), players.NewArgon2idHasher(1, 64, 16, 8, 1), clock)
	tokens := NewTokenManager("test-secret", time.Hour, clock)

	handler := NewHandler(playerApp, directory, engine, chatLog, tokens, clock, cfg)
	manager := NewConnectionManager(DefaultConnectionConfig(), ConnectionDeps{
		Rooms:   directory,
		Chat:    chatLog,
		Clock:   clock,
		OnFrame: handler.HandleFrame,
		OnTimeout: func(ctx context.Context, code string, turn models.Turn) error {
			_, err := engine.HandleTimeout(ctx, code, turn)
			return err
		},
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	NewWebSocketHandler(manager, tokens, directory).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		manager.Shutdown()
		server.Close()
	})

	return &harness{
		clock:   clock,
		server:  server,
		rooms:   directory,
		engine:  engine,
		manager: manager,
		tokens:  tokens,
	}
}

func defaultLimits() HandlerConfig {
	return HandlerConfig{ChatRate: 100, ChatBurst: 100, GuessRate: 100, GuessBurst: 100}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// register creates an account and returns its profile and token.
func (h *harness) register(t *testing.T, name string) AuthResponse {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/players", "", players.RegisterRequest{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "secret-" + name,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var auth AuthResponse
	require.NoError(t, json.Unmarshal(body, &auth))
	return auth
}

// lobby registers the named players and seats them in room code, hosted by the first.
func (h *harness) lobby(t *testing.T, code string, names ...string) []AuthResponse {
	t.Helper()
	auths := make([]AuthResponse, len(names))
	for i, name := range names {
		auths[i] = h.register(t, name)
	}
	status, body := h.do(t, http.MethodPost, "/api/rooms", auths[0].Token, CreateRoomRequest{Code: code})
	require.Equal(t, http.StatusCreated, status, string(body))
	for _, a := range auths[1:] {
		status, body := h.do(t, http.MethodPost, "/api/rooms/"+code+"/join", a.Token, nil)
		require.Equal(t, http.StatusOK, status, string(body))
	}
	return auths
}

func TestTokenManager(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	tokens := NewTokenManager("secret", time.Hour, clock)

	token, err := tokens.Generate("p1", "Ann")
	require.NoError(t, err)

	id, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", id.PlayerID)
	assert.Equal(t, "Ann", id.PlayerName)
	assert.Equal(t, token, id.Token)

	_, err = NewTokenManager("other", time.Hour, clock).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	clock.Advance(2 * time.Hour)
	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrRoomNotFound, http.StatusNotFound},
		{models.ErrIncorrectLogin, http.StatusNotFound},
		{models.ErrRoomFull, http.StatusConflict},
		{models.ErrNameTaken, http.StatusConflict},
		{models.ErrNotYourTurn, http.StatusUnprocessableEntity},
		{models.Unavailable(io.ErrUnexpectedEOF), http.StatusServiceUnavailable},
		{models.ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
		{errUnauthenticated, http.StatusUnauthorized},
		{errRateLimited, http.StatusTooManyRequests},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRegisterLoginAndProfile(t *testing.T) {
	h := newHarness(t, defaultLimits())
	ann := h.register(t, "Ann")
	assert.Equal(t, "Ann", ann.Player.Name)
	assert.NotEmpty(t, ann.Token)

	status, _ := h.do(t, http.MethodPost, "/api/players", "", players.RegisterRequest{Name: "ann", Email: "a@b.co", Password: "another"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = h.do(t, http.MethodPost, "/api/login", "", players.LoginRequest{Name: "Ann", Password: "wrong-password"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body := h.do(t, http.MethodPost, "/api/login", "", players.LoginRequest{Name: "Ann", Password: "secret-Ann"})
	require.Equal(t, http.StatusOK, status)
	var auth AuthResponse
	require.NoError(t, json.Unmarshal(body, &auth))
	assert.Equal(t, ann.Player.ID, auth.Player.ID)

	status, body = h.do(t, http.MethodGet, "/api/players/"+ann.Player.ID, auth.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var profile models.PlayerProfile
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "Ann", profile.Name)
	assert.NotContains(t, string(body), "password")
}

func TestRoutesRequireAuth(t *testing.T) {
	h := newHarness(t, defaultLimits())

	status, _ := h.do(t, http.MethodPost, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.do(t, http.MethodGet, "/api/rooms/1234", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	h := newHarness(t, defaultLimits())
	ann := h.register(t, "Ann")

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/api/rooms", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ann.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoomLifecycle(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")
	ann, bob := auths[0], auths[1]

	status, body := h.do(t, http.MethodPost, "/api/rooms/7421/join", bob.Token, nil)
	assert.Equal(t, http.StatusConflict, status)
	var membership MembershipResponse
	require.NoError(t, json.Unmarshal(body, &membership))
	assert.Equal(t, "ALREADY_JOINED", membership.Result)

	status, _ = h.do(t, http.MethodPost, "/api/rooms/0000/join", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/ready", bob.Token, ReadyRequest{Ready: true})
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/start", bob.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = h.do(t, http.MethodPost, "/api/rooms/7421/start", ann.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var started TransitionResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, game.OutcomeStarted, started.Outcome)
	require.NotNil(t, started.Game)
	assert.Equal(t, 60, started.Game.TimeRemainingSec)

	status, body = h.do(t, http.MethodGet, "/api/rooms/7421/state", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var state StateResponse
	require.NoError(t, json.Unmarshal(body, &state))
	require.NotNil(t, state.Room.Game)
	assert.True(t, state.Room.PlayerStatus[bob.Player.ID])
	assert.NotContains(t, state.Room.Game.VisibleEmojis, bob.Player.ID)
	assert.Contains(t, state.Room.Game.VisibleEmojis, ann.Player.ID)
	require.NotEmpty(t, state.Chat)
	assert.Contains(t, state.Chat[0].Text, "The game has started!")

	// whoever is not up may not guess
	current := state.Room.Game.CurrentPlayerID
	waiting := ann
	if current == ann.Player.ID {
		waiting = bob
	}
	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/guess", waiting.Token, GuessRequest{Symbol: "😀"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = h.do(t, http.MethodPost, "/api/rooms/7421/end", ann.Token, EndRequest{})
	require.Equal(t, http.StatusOK, status, string(body))
	var ended TransitionResponse
	require.NoError(t, json.Unmarshal(body, &ended))
	assert.True(t, ended.Draw)
	require.NotNil(t, ended.Game)
	assert.Len(t, ended.Game.VisibleEmojis, 2, "a finished game reveals every emoji")

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/close", bob.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/close", ann.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = h.do(t, http.MethodPost, "/api/rooms/7421/leave", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &membership))
	assert.Equal(t, "LEFT", membership.Result)

	status, _ = h.do(t, http.MethodDelete, "/api/rooms/7421", ann.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do(t, http.MethodGet, "/api/rooms/7421", ann.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateRoomWithGeneratedCode(t *testing.T) {
	h := newHarness(t, defaultLimits())
	ann := h.register(t, "Ann")

	status, body := h.do(t, http.MethodPost, "/api/rooms", ann.Token, nil)
	require.Equal(t, http.StatusCreated, status)
	var state RoomState
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Len(t, state.ID, 4)
	assert.Equal(t, ann.Player.ID, state.HostID)
	assert.Equal(t, "Ann", state.Players[ann.Player.ID])
}

func TestGuessesAreRateLimited(t *testing.T) {
	h := newHarness(t, HandlerConfig{ChatRate: 100, ChatBurst: 100, GuessRate: 0.001, GuessBurst: 1})
	auths := h.lobby(t, "7421", "Ann", "Bob")

	status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/start", auths[0].Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/guess", auths[1].Token, GuessRequest{Symbol: "😀"})
	assert.NotEqual(t, http.StatusTooManyRequests, status)
	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/guess", auths[1].Token, GuessRequest{Symbol: "😀"})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestTimeoutIsHostOnly(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")
	ann, bob := auths[0], auths[1]

	status, body := h.do(t, http.MethodPost, "/api/rooms/7421/start", ann.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var started TransitionResponse
	require.NoError(t, json.Unmarshal(body, &started))
	turn := models.Turn{
		Round:    started.Game.Round,
		Index:    started.Game.CurrentTurnIndex,
		Deadline: started.Game.TurnDeadline,
	}

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/timeout", bob.Token, turn)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = h.do(t, http.MethodPost, "/api/rooms/7421/timeout", ann.Token, turn)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(body), "deadline has not passed")

	h.clock.Advance(61 * time.Second)
	status, body = h.do(t, http.MethodPost, "/api/rooms/7421/timeout", ann.Token, turn)
	require.Equal(t, http.StatusOK, status, string(body))
	var timedOut TransitionResponse
	require.NoError(t, json.Unmarshal(body, &timedOut))
	assert.Equal(t, game.OutcomeTimeout, timedOut.Outcome)
	assert.True(t, timedOut.Eliminated)
	assert.True(t, timedOut.Ended, "two players down to one ends the game")

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/timeout", ann.Token, turn)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestChatRequiresMembership(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")
	eve := h.register(t, "Eve")

	status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/chat", eve.Token, ChatRequest{Text: "hi"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/chat", auths[1].Token, ChatRequest{Text: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/chat", auths[1].Token, ChatRequest{Text: "hello"})
	assert.Equal(t, http.StatusCreated, status)

	status, body := h.do(t, http.MethodGet, "/api/rooms/7421/chat", auths[0].Token, nil)
	require.Equal(t, http.StatusOK, status)
	var messages []models.ChatMessage
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "Bob", messages[0].SenderName)
	assert.Equal(t, "hello", messages[0].Text)
}

func TestChatIsRateLimited(t *testing.T) {
	h := newHarness(t, HandlerConfig{ChatRate: 0.001, ChatBurst: 2, GuessRate: 100, GuessBurst: 100})
	auths := h.lobby(t, "7421", "Ann", "Bob")

	for range 2 {
		status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/chat", auths[1].Token, ChatRequest{Text: "spam"})
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/chat", auths[1].Token, ChatRequest{Text: "spam"})
	assert.Equal(t, http.StatusTooManyRequests, status)

	// limits are per player
	status, _ = h.do(t, http.MethodPost, "/api/rooms/7421/chat", auths[0].Token, ChatRequest{Text: "hi"})
	assert.Equal(t, http.StatusCreated, status)
}

func (h *harness) dial(t *testing.T, code, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/rooms/" + code + "?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerFrame) bool) ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame ServerFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func TestWebSocketStreamsRoomAndChat(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")

	conn, _, err := h.dial(t, "7421", auths[1].Token)
	require.NoError(t, err)
	defer conn.Close()

	frame := readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameRoom })
	assert.Equal(t, "7421", frame.Room.ID)
	assert.Len(t, frame.Room.Players, 2)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSend, Text: "over the wire"}))
	frame = readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameChat && len(f.Messages) > 0 })
	assert.Equal(t, "over the wire", frame.Messages[0].Text)
	assert.Equal(t, auths[1].Player.ID, frame.Messages[0].SenderID)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameGuess, Symbol: "😀"}))
	frame = readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameError })
	assert.Contains(t, frame.Error, "game session not found")

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: "dance"}))
	frame = readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameError })
	assert.Contains(t, frame.Error, "unknown frame type")

	assert.Equal(t, 1, h.manager.ConnectionCount("7421"))
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.manager.ConnectionCount("7421") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocketSeesRoomDeletion(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")

	conn, _, err := h.dial(t, "7421", auths[1].Token)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameRoom })

	status, _ := h.do(t, http.MethodDelete, "/api/rooms/7421", auths[0].Token, nil)
	require.Equal(t, http.StatusNoContent, status)
	readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameRoomDeleted })
}

func TestWebSocketRejectsOutsiders(t *testing.T) {
	h := newHarness(t, defaultLimits())
	h.lobby(t, "7421", "Ann", "Bob")
	eve := h.register(t, "Eve")

	_, resp, err := h.dial(t, "7421", eve.Token)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	_, resp, err = h.dial(t, "7421", "bogus")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHostConnectionTimesOutExpiredTurn(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob", "Cid")
	ctx := context.Background()

	conn, _, err := h.dial(t, "7421", auths[0].Token)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameRoom })

	status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/start", auths[0].Token, nil)
	require.Equal(t, http.StatusOK, status)
	readUntil(t, conn, func(f ServerFrame) bool { return f.Type == FrameRoom && f.Room.Game != nil })

	before, err := h.engine.Session(ctx, "7421")
	require.NoError(t, err)

	h.clock.Advance(61 * time.Second)
	require.Eventually(t, func() bool {
		s, err := h.engine.Session(ctx, "7421")
		return err == nil && len(s.EliminatedPlayers) == 1
	}, 5*time.Second, 10*time.Millisecond)

	after, err := h.engine.Session(ctx, "7421")
	require.NoError(t, err)
	assert.True(t, after.IsEliminated(before.CurrentPlayerID()))
	assert.Equal(t, before.CurrentTurnIndex+1, after.CurrentTurnIndex)
}

func TestNewRoomStateHidesOwnEmoji(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	room := &models.Room{
		ID:      "7421",
		HostID:  "a",
		Players: map[string]string{"a": "Ann", "b": "Bob"},
		Game: &models.GameSession{
			Started:        true,
			PlayersOrder:   []string{"a", "b"},
			AssignedEmojis: map[string]string{"a": "😀", "b": "🎉"},
			TurnDeadline:   now.Add(10500 * time.Millisecond).UnixMilli(),
			Round:          1,
		},
	}

	state := NewRoomState(room, "a", now)
	require.NotNil(t, state.Game)
	assert.Equal(t, map[string]string{"b": "🎉"}, state.Game.VisibleEmojis)
	assert.Equal(t, 10, state.Game.TimeRemainingSec)
	assert.Equal(t, "a", state.Game.CurrentPlayerID)
	assert.Equal(t, models.PhaseInProgress, state.Game.Phase)

	room.Game.GameEnded = true
	state = NewRoomState(room, "a", now)
	assert.Len(t, state.Game.VisibleEmojis, 2)
	assert.Zero(t, state.Game.TimeRemainingSec)
}

func TestCreateRoomRejectsMalformedCode(t *testing.T) {
	h := newHarness(t, defaultLimits())
	h.lobby(t, "7421", "Ann")
	mallory := h.register(t, "Mallory")

	for _, code := range []string{"7421/players/evil", "7421/game", "12"} {
		status, body := h.do(t, http.MethodPost, "/api/rooms", mallory.Token, CreateRoomRequest{Code: code})
		assert.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	}

	room, err := h.rooms.GetRoom(context.Background(), "7421")
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)

	status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/join", mallory.Token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRoomReadsRequireMembership(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")
	eve := h.register(t, "Eve")

	status, _ := h.do(t, http.MethodPost, "/api/rooms/7421/start", auths[0].Token, nil)
	require.Equal(t, http.StatusOK, status)

	for _, path := range []string{"/api/rooms/7421", "/api/rooms/7421/state", "/api/rooms/7421/chat"} {
		status, body := h.do(t, http.MethodGet, path, eve.Token, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status, path)
		assert.NotContains(t, string(body), "visible_emojis", path)

		status, _ = h.do(t, http.MethodGet, path, auths[1].Token, nil)
		assert.Equal(t, http.StatusOK, status, path)
	}

	status, _ = h.do(t, http.MethodGet, "/api/rooms/9999/chat", auths[0].Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLimitersForgetRefilledBuckets(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	l := NewLimiters(1, 2, clock)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())

	// a drained bucket survives a sweep until it has refilled
	clock.Advance(sweepInterval)
	l.limiters["a"].AllowN(clock.Now(), 2)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Allow("a"))

	clock.Advance(sweepInterval)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 1, l.Len())
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://game.example"}, "", true},
		{"same origin", nil, "http://gateway.test", true},
		{"foreign origin by default", nil, "https://evil.example", false},
		{"listed", []string{"https://game.example"}, "https://game.example", true},
		{"not listed", []string{"https://game.example"}, "https://evil.example", false},
		{"wildcard subdomain", []string{"https://*.game.example"}, "https://eu.game.example", true},
		{"wildcard needs suffix", []string{"https://*.game.example"}, "https://game.example.evil", false},
		{"allow all", []string{"*"}, "https://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://gateway.test/ws/rooms/7421", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, OriginChecker(tt.allowed)(r))
		})
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t, defaultLimits())
	auths := h.lobby(t, "7421", "Ann", "Bob")

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/rooms/7421?token=" + auths[1].Token
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {h.server.URL}})
	require.NoError(t, err)
	conn.Close()
}

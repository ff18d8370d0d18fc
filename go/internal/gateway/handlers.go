package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/chat"
	"github.com/mcdev12/guessmoji/go/internal/game"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/players"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
	"github.com/mcdev12/guessmoji/go/internal/session"
)

// Handler serves the JSON API.
type Handler struct {
	players *players.App
	rooms   *rooms.Directory
	engine  *game.Engine
	chat    *chat.Log
	tokens  *TokenManager
	clock   clockwork.Clock

	chatLimits  *Limiters
	guessLimits *Limiters
}

// HandlerConfig carries the rate limits of the API.
type HandlerConfig struct {
	ChatRate   float64
	ChatBurst  int
	GuessRate  float64
	GuessBurst int
}

func NewHandler(playerApp *players.App, directory *rooms.Directory, engine *game.Engine, chatLog *chat.Log, tokens *TokenManager, clock clockwork.Clock, cfg HandlerConfig) *Handler {
	return &Handler{
		players:     playerApp,
		rooms:       directory,
		engine:      engine,
		chat:        chatLog,
		tokens:      tokens,
		clock:       clock,
		chatLimits:  NewLimiters(cfg.ChatRate, cfg.ChatBurst, clock),
		guessLimits: NewLimiters(cfg.GuessRate, cfg.GuessBurst, clock),
	}
}

// RegisterRoutes registers the API routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/players", h.handleRegister)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.Handle("GET /api/players/{id}", h.authed(h.handleGetPlayer))

	mux.Handle("POST /api/rooms", h.authed(h.handleCreateRoom))
	mux.Handle("GET /api/rooms/{code}", h.authed(h.handleGetRoom))
	mux.Handle("DELETE /api/rooms/{code}", h.authed(h.handleDeleteRoom))
	mux.Handle("GET /api/rooms/{code}/state", h.authed(h.handleGetState))
	mux.Handle("POST /api/rooms/{code}/join", h.authed(h.handleJoin))
	mux.Handle("POST /api/rooms/{code}/leave", h.authed(h.handleLeave))
	mux.Handle("POST /api/rooms/{code}/close", h.authed(h.handleClose))
	mux.Handle("POST /api/rooms/{code}/ready", h.authed(h.handleReady))

	mux.Handle("POST /api/rooms/{code}/start", h.authed(h.handleStart))
	mux.Handle("POST /api/rooms/{code}/guess", h.authed(h.handleGuess))
	mux.Handle("POST /api/rooms/{code}/timeout", h.authed(h.handleTimeout))
	mux.Handle("POST /api/rooms/{code}/end", h.authed(h.handleEnd))

	mux.Handle("GET /api/rooms/{code}/chat", h.authed(h.handleGetChat))
	mux.Handle("POST /api/rooms/{code}/chat", h.authed(h.handleSendChat))
}

type authedFunc func(w http.ResponseWriter, r *http.Request, id session.Context)

func (h *Handler) authed(fn authedFunc) http.Handler {
	return h.tokens.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := Identity(r.Context())
		fn(w, r, id)
	}))
}

// AuthResponse is returned by registration and login.
type AuthResponse struct {
	Player models.PlayerProfile `json:"player"`
	Token  string               `json:"token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req players.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account, err := h.players.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeAuth(w, http.StatusCreated, account)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req players.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account, err := h.players.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeAuth(w, http.StatusOK, account)
}

func (h *Handler) writeAuth(w http.ResponseWriter, status int, account *models.PlayerAccount) {
	token, err := h.tokens.Generate(account.ID, account.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, AuthResponse{Player: account.Profile(), Token: token})
}

func (h *Handler) handleGetPlayer(w http.ResponseWriter, r *http.Request, _ session.Context) {
	account, err := h.players.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account.Profile())
}

// CreateRoomRequest optionally asks for a specific code.
type CreateRoomRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request, id session.Context) {
	var req CreateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		room *models.Room
		err  error
	)
	if req.Code != "" {
		room, err = h.rooms.CreateRoom(r.Context(), req.Code, id.PlayerID, id.PlayerName)
	} else {
		room, err = h.rooms.CreateRoomWithCode(r.Context(), id.PlayerID, id.PlayerName)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewRoomState(room, id.PlayerID, h.clock.Now()))
}

// memberRoom reads a room the caller belongs to.
func (h *Handler) memberRoom(ctx context.Context, code string, id session.Context) (*models.Room, error) {
	room, err := h.rooms.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.HasPlayer(id.PlayerID) {
		return nil, models.ErrNotMember
	}
	return room, nil
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request, id session.Context) {
	room, err := h.memberRoom(r.Context(), r.PathValue("code"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRoomState(room, id.PlayerID, h.clock.Now()))
}

// StateResponse is a room together with its chat log.
type StateResponse struct {
	Room RoomState            `json:"room"`
	Chat []models.ChatMessage `json:"chat"`
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request, id session.Context) {
	code := r.PathValue("code")
	room, err := h.memberRoom(r.Context(), code, id)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.chat.History(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		Room: NewRoomState(room, id.PlayerID, h.clock.Now()),
		Chat: messages,
	})
}

// MembershipResponse reports the outcome of a join or leave.
type MembershipResponse struct {
	Result string     `json:"result"`
	Error  string     `json:"error,omitempty"`
	Room   *RoomState `json:"room,omitempty"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, id session.Context) {
	code := r.PathValue("code")
	result, err := h.rooms.JoinRoom(r.Context(), code, id.PlayerID, id.PlayerName)
	if err != nil {
		writeError(w, err)
		return
	}

	var failure error
	switch result {
	case rooms.JoinResultSuccess:
		room, err := h.rooms.GetRoom(r.Context(), code)
		if err != nil {
			writeError(w, err)
			return
		}
		state := NewRoomState(room, id.PlayerID, h.clock.Now())
		writeJSON(w, http.StatusOK, MembershipResponse{Result: result.String(), Room: &state})
		return
	case rooms.JoinResultRoomNotFound:
		failure = models.ErrRoomNotFound
	case rooms.JoinResultRoomInactive:
		failure = models.ErrRoomInactive
	case rooms.JoinResultRoomFull:
		failure = models.ErrRoomFull
	case rooms.JoinResultAlreadyJoined:
		failure = models.ErrAlreadyJoined
	default:
		writeError(w, fmt.Errorf("unexpected join result %s", result))
		return
	}
	writeJSON(w, statusFor(failure), MembershipResponse{Result: result.String(), Error: failure.Error()})
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request, id session.Context) {
	result, err := h.rooms.LeaveRoom(r.Context(), r.PathValue("code"), id.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MembershipResponse{Result: result.String()})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, id session.Context) {
	if err := h.rooms.CloseRoom(r.Context(), r.PathValue("code"), id.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteRoom(w http.ResponseWriter, r *http.Request, id session.Context) {
	if err := h.rooms.DeleteRoom(r.Context(), r.PathValue("code"), id.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReadyRequest toggles the caller's ready flag.
type ReadyRequest struct {
	Ready bool `json:"ready"`
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request, id session.Context) {
	var req ReadyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.rooms.SetReady(r.Context(), r.PathValue("code"), id.PlayerID, req.Ready); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request, id session.Context) {
	t, err := h.engine.StartSession(r.Context(), r.PathValue("code"), id.PlayerID)
	h.writeTransition(w, t, err, id)
}

// GuessRequest submits a guess for the caller's own emoji.
type GuessRequest struct {
	Symbol string `json:"symbol"`
}

func (h *Handler) handleGuess(w http.ResponseWriter, r *http.Request, id session.Context) {
	var req GuessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.submitGuess(r.Context(), id, r.PathValue("code"), req.Symbol)
	h.writeTransition(w, t, err, id)
}

func (h *Handler) submitGuess(ctx context.Context, id session.Context, code, symbol string) (game.Transition, error) {
	if !h.guessLimits.Allow(id.PlayerID) {
		return game.Transition{}, errRateLimited
	}
	return h.engine.SubmitGuess(ctx, code, id.PlayerID, symbol)
}

func (h *Handler) handleTimeout(w http.ResponseWriter, r *http.Request, id session.Context) {
	var turn models.Turn
	if err := decodeBody(r, &turn); err != nil {
		writeError(w, err)
		return
	}
	code := r.PathValue("code")

	// only the host arbitrates turn expiry
	room, err := h.rooms.GetRoom(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if !room.IsHost(id.PlayerID) {
		writeError(w, models.ErrNotHost)
		return
	}

	t, err := h.engine.HandleTimeout(r.Context(), code, turn)
	h.writeTransition(w, t, err, id)
}

// EndRequest ends the session; an empty winner records a draw.
type EndRequest struct {
	WinnerID string `json:"winner_id"`
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request, id session.Context) {
	var req EndRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.engine.EndSession(r.Context(), r.PathValue("code"), id.PlayerID, req.WinnerID)
	h.writeTransition(w, t, err, id)
}

func (h *Handler) writeTransition(w http.ResponseWriter, t game.Transition, err error, id session.Context) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransitionResponse(t, id.PlayerID, h.clock.Now()))
}

func (h *Handler) handleGetChat(w http.ResponseWriter, r *http.Request, id session.Context) {
	code := r.PathValue("code")
	if _, err := h.memberRoom(r.Context(), code, id); err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.chat.History(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// ChatRequest posts a message to a room's log.
type ChatRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSendChat(w http.ResponseWriter, r *http.Request, id session.Context) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.sendChat(r.Context(), id, r.PathValue("code"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) sendChat(ctx context.Context, id session.Context, code, text string) (*models.ChatMessage, error) {
	if !h.chatLimits.Allow(id.PlayerID) {
		return nil, errRateLimited
	}
	if _, err := h.memberRoom(ctx, code, id); err != nil {
		return nil, err
	}
	msg, err := h.chat.Send(ctx, code, id.PlayerID, id.PlayerName, text)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("room_code", code).Str("player_id", id.PlayerID).Msg("chat message sent")
	return msg, nil
}

// HandleFrame executes a websocket frame on behalf of a connected player.
// Chat frames need no reply since the chat feed echoes them.
func (h *Handler) HandleFrame(ctx context.Context, id session.Context, code string, frame ClientFrame) (*ServerFrame, error) {
	switch frame.Type {
	case FrameGuess:
		t, err := h.submitGuess(ctx, id, code, frame.Symbol)
		if err != nil {
			return nil, err
		}
		resp := newTransitionResponse(t, id.PlayerID, h.clock.Now())
		return &ServerFrame{Type: FrameResult, Transition: &resp}, nil
	case FrameSend:
		_, err := h.sendChat(ctx, id, code, frame.Text)
		return nil, err
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", errBadRequest, frame.Type)
	}
}

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/guessmoji/go/internal/session"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// playerClaims is the JWT body. Subject carries the player id.
type playerClaims struct {
	PlayerName string `json:"player_name"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
	clock     clockwork.Clock
}

func NewTokenManager(secretKey string, ttl time.Duration, clock clockwork.Clock) *TokenManager {
	return &TokenManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		clock:     clock,
	}
}

// Generate issues a token for the player.
func (m *TokenManager) Generate(playerID, playerName string) (string, error) {
	now := m.clock.Now()
	claims := playerClaims{
		PlayerName: playerName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// Verify returns the identity a token was issued for.
func (m *TokenManager) Verify(tokenString string) (session.Context, error) {
	token, err := jwt.ParseWithClaims(tokenString, &playerClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return session.Context{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*playerClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return session.Context{}, ErrInvalidToken
	}
	return session.Context{
		PlayerID:   claims.Subject,
		PlayerName: claims.PlayerName,
		Token:      tokenString,
	}, nil
}

type identityKey struct{}

// Identity returns the authenticated player stored by the auth middleware.
func Identity(ctx context.Context) (session.Context, bool) {
	id, ok := ctx.Value(identityKey{}).(session.Context)
	return id, ok
}

// Authenticate rejects requests without a valid bearer token. Websocket
// upgrades may pass the token as ?token= instead.
func (m *TokenManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, errUnauthenticated)
			return
		}
		id, err := m.Verify(token)
		if err != nil {
			writeError(w, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

package gateway

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"
)

// OriginChecker builds a websocket CheckOrigin from the origin list the CORS
// middleware is given, with the same pattern rules. Requests without an
// Origin header and same-origin requests always pass. An empty list allows
// nothing else.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	var policy *cors.Cors
	if len(allowed) > 0 {
		policy = cors.New(cors.Options{AllowedOrigins: allowed})
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		return policy != nil && policy.OriginAllowed(r)
	}
}

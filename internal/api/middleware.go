package api

// This file contains the bearer token check that guards the job routes.

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/archon-dev/archon/internal/auth"
)

// verifiedToken remembers the last token that matched the configured hash,
// so reconnecting streams do not pay for a bcrypt comparison each time.
type verifiedToken struct {
	hash   string
	digest [sha256.Size]byte
}

// AuthMiddleware rejects requests without a bearer token matching
// auth.token_hash. Authentication is disabled while the hash is empty.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.app.Config().Auth.TokenHash
		if hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: No bearer token")
			return
		}
		if !s.checkToken(token, hash) {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) checkToken(token, hash string) bool {
	digest := sha256.Sum256([]byte(token))
	if v := s.verified.Load(); v != nil && v.hash == hash &&
		subtle.ConstantTimeCompare(v.digest[:], digest[:]) == 1 {
		return true
	}
	if !auth.CheckToken(token, hash) {
		return false
	}
	s.verified.Store(&verifiedToken{hash: hash, digest: digest})
	return true
}

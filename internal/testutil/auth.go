package testutil

import (
	"testing"

	"github.com/archon-dev/archon/internal/auth"
	"github.com/archon-dev/archon/internal/core"
	"golang.org/x/crypto/bcrypt"
)

// RequireToken turns on bearer authentication for app with the given token.
func RequireToken(t *testing.T, app *core.App, token string) {
	t.Helper()
	hash, err := auth.HashTokenCost(token, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash test token: %v", err)
	}
	cfg := *app.Config()
	cfg.Auth.TokenHash = hash
	app.SetConfig(&cfg)
}

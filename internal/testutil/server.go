// Shared test server setup, which simplifies the API and CLI tests.

package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/archon-dev/archon/internal/api"
	"github.com/archon-dev/archon/internal/config"
	"github.com/archon-dev/archon/internal/core"
)

// TestConfig returns a configuration with an empty library in a temp dir.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Library.Path = t.TempDir()
	cfg.Server.CORSOrigins = []string{"http://localhost:5173"}
	return cfg
}

// SetupTestApp builds a core.App around an in-memory database.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	app := core.NewWithDB(TestConfig(t), SetupTestDB(t))
	t.Cleanup(app.Close)
	return app
}

// SetupTestServer initializes a core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t)
	return api.NewServer(app), app
}

// StartHTTPServer serves the API on a local port. The server is closed
// before the app, so open streams end before jobs are shut down.
func StartHTTPServer(t *testing.T) (*httptest.Server, *core.App) {
	t.Helper()
	server, app := SetupTestServer(t)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, app
}

package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/archon-dev/archon/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()

	t.Run("DisabledWithoutHash", func(t *testing.T) {
		rr := serve(t, router, "GET", "/api/jobs", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	testutil.RequireToken(t, app, "s3cret")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"WrongScheme", "Basic s3cret", http.StatusUnauthorized},
		{"WrongToken", "Bearer nope", http.StatusUnauthorized},
		{"Valid", "Bearer s3cret", http.StatusOK},
		{"ValidCached", "bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.header != "" {
				header.Set("Authorization", tc.header)
			}
			rr := serve(t, router, "GET", "/api/jobs", "", header)
			if rr.Code != tc.want {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tc.want)
			}
		})
	}

	t.Run("RotatedToken", func(t *testing.T) {
		testutil.RequireToken(t, app, "rotated")
		header := http.Header{}
		header.Set("Authorization", "Bearer s3cret")
		assert.Equal(t, http.StatusUnauthorized, serve(t, router, "GET", "/api/jobs", "", header).Code)
		header.Set("Authorization", "Bearer rotated")
		assert.Equal(t, http.StatusOK, serve(t, router, "GET", "/api/jobs", "", header).Code)
	})

	t.Run("HealthIsPublic", func(t *testing.T) {
		rr := serve(t, router, "GET", "/api/health", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	header := http.Header{}
	header.Set("Origin", "http://localhost:5173")
	header.Set("Access-Control-Request-Method", "GET")
	header.Set("Access-Control-Request-Headers", "authorization")
	rr := serve(t, router, "OPTIONS", "/api/jobs/1/stream", "", header)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")), "authorization")

	header.Set("Origin", "http://evil.example")
	rr = serve(t, router, "OPTIONS", "/api/jobs/1/stream", "", header)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/archon-dev/archon/internal/core"
	"github.com/archon-dev/archon/internal/jobs"
)

const holdKind = "hold"

// registerHoldJob adds a job kind whose task applies the functions sent on
// the returned channel and completes when the channel is closed.
func registerHoldJob(app *core.App) chan<- func(*jobs.Reporter) {
	steps := make(chan func(*jobs.Reporter))
	app.JobManager().Register(holdKind, func(ctx context.Context, r *jobs.Reporter, p jobs.Params) error {
		for {
			select {
			case fn, ok := <-steps:
				if !ok {
					return nil
				}
				fn(r)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return steps
}

func serve(t *testing.T, h http.Handler, method, path string, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

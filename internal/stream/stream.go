package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-dev/archon/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"k8s.io/utils/clock"
)

// Event names with special meaning. Every other event carries progress.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

const readBufferSize = 32 * 1024

// Callbacks receive the events of one Stream. They are called one at a
// time, in frame order, from the stream's goroutine. Only OnProgress is
// required.
type Callbacks struct {
	OnProgress     func(models.JobProgressSnapshot)
	OnComplete     func()
	OnError        func(error)
	OnReconnecting func(attempt int)
}

// State is the position of a Stream in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateReconnecting
	StateCompleted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the stream.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateClosed
}

// Stream is a logically continuous progress subscription for one job.
// A single goroutine owns the connection, so at most one request or one
// retry timer is outstanding at any time.
type Stream struct {
	client *Client
	jobID  string
	cb     Callbacks

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// parser is only touched by the run goroutine.
	parser Parser

	// deliverMu is held while a callback runs. Close takes it so that it
	// returns only after a callback running on the stream goroutine ends.
	deliverMu sync.Mutex
	runGID    atomic.Uint64

	mu         sync.Mutex
	state      State
	closed     bool
	retryCount int
	timer      clock.Timer
	backoff    *backoff.ExponentialBackOff
	failures   *multierror.Error
}

func newStream(c *Client, jobID string, cb Callbacks) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	b := c.policy.NewBackOff()
	b.Clock = c.clock
	b.Reset()
	return &Stream{
		client:  c,
		jobID:   jobID,
		cb:      cb,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateConnecting,
		backoff: b,
	}
}

// JobID returns the job this stream follows.
func (s *Stream) JobID() string { return s.jobID }

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the stream goroutine has exited. No callback runs
// after Done is closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close stops the stream. It cancels a pending retry timer and aborts the
// in-flight request. No callback fires after the first Close returns, and no
// error is reported for it. Close is idempotent and may be called from a
// callback. Called from any other goroutine, it waits for a callback that
// is already running to return.
func (s *Stream) Close() {
	s.mu.Lock()
	wasClosed := s.closed
	if !wasClosed {
		s.closed = true
		s.state = StateClosed
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	}
	s.mu.Unlock()
	if !wasClosed {
		s.cancel()
		log.Debugf("job %s: stream closed by caller", s.jobID)
	}

	// A callback calling Close already holds deliverMu.
	if goroutineID() == s.runGID.Load() {
		return
	}
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) run() {
	s.runGID.Store(goroutineID())
	defer close(s.done)
	defer s.cancel()

	for {
		err := s.connect()
		if s.isClosed() {
			return
		}
		delay, ok := s.scheduleRetry(err)
		if !ok {
			return
		}
		if !s.wait(delay) {
			return
		}
	}
}

// connect makes one connection attempt and reads it until it ends. It
// returns nil when a terminal frame was handled or the stream was closed.
func (s *Stream) connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	req, err := s.client.newRequest(ctx, http.MethodGet, s.client.streamURL(s.jobID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode}
	}

	s.mu.Lock()
	if !s.closed {
		s.state = StateStreaming
	}
	s.mu.Unlock()
	log.Debugf("job %s: connected", s.jobID)

	s.parser.Reset()
	buf := make([]byte, readBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, f := range s.parser.Feed(buf[:n]) {
				if s.dispatch(f) {
					return nil
				}
			}
			if s.parser.Buffered() > MaxFrameSize {
				return ErrFrameTooLarge
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			return err
		}
	}
}

// dispatch handles one frame and reports whether the stream is finished.
func (s *Stream) dispatch(f Frame) bool {
	if s.isClosed() {
		return true
	}

	if f.Event == EventError {
		var payload models.StreamError
		msg := f.Data
		if err := json.Unmarshal([]byte(f.Data), &payload); err == nil && payload.Message != "" {
			msg = payload.Message
		}
		log.Warnf("job %s: server reported error: %s", s.jobID, msg)
		s.fail(&ServerError{Message: msg})
		return true
	}

	var snap models.JobProgressSnapshot
	if err := json.Unmarshal([]byte(f.Data), &snap); err != nil {
		log.Warnf("job %s: dropping malformed %q frame: %v", s.jobID, f.Event, err)
		return false
	}

	if f.Event == EventComplete {
		s.deliver(func() { s.cb.OnProgress(snap) })
		s.end(StateCompleted, s.cb.OnComplete)
		return true
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.retryCount = 0
	s.backoff.Reset()
	s.failures = nil
	s.state = StateStreaming
	s.mu.Unlock()

	s.deliver(func() { s.cb.OnProgress(snap) })
	return false
}

// deliver runs fn unless the stream has been closed.
func (s *Stream) deliver(fn func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.isClosed() {
		return
	}
	fn()
}

// end moves the stream into a terminal state and runs fn, unless the
// stream had already ended.
func (s *Stream) end(state State, fn func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.finish(state) && fn != nil {
		fn()
	}
}

// finish moves the stream into a terminal state. It returns false if the
// stream had already ended, in which case no terminal callback may fire.
func (s *Stream) finish(state State) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.state = state
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.cancel()
	return true
}

func (s *Stream) fail(err error) {
	var fn func()
	if s.cb.OnError != nil {
		fn = func() { s.cb.OnError(err) }
	}
	s.end(StateFailed, fn)
}

// scheduleRetry records a failed attempt and returns the delay before the
// next one, or false once the retry budget is spent.
func (s *Stream) scheduleRetry(cause error) (time.Duration, bool) {
	if cause == nil {
		cause = ErrStreamEnded
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, false
	}
	s.retryCount++
	attempt := s.retryCount
	s.failures = multierror.Append(s.failures, fmt.Errorf("attempt %d: %w", attempt, cause))
	limit := s.client.policy.MaxRetries
	if attempt > limit {
		failures := s.failures.ErrorOrNil()
		s.mu.Unlock()
		log.Errorf("job %s: giving up after %d failed attempts: %v", s.jobID, attempt, cause)
		s.fail(&RetriesExhaustedError{Attempts: attempt, Err: failures})
		return 0, false
	}
	delay := s.backoff.NextBackOff()
	s.state = StateReconnecting
	s.mu.Unlock()

	log.Infof("job %s: connection lost (%v), reconnecting in %s (attempt %d/%d)", s.jobID, cause, delay, attempt, limit)
	if s.cb.OnReconnecting != nil {
		s.deliver(func() { s.cb.OnReconnecting(attempt) })
	}
	return delay, true
}

// wait blocks for delay on the client's clock. It returns false if the
// stream was closed meanwhile.
func (s *Stream) wait(delay time.Duration) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	t := s.client.clock.NewTimer(delay)
	s.timer = t
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.timer == t {
			s.timer = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-t.C():
		return !s.isClosed()
	case <-s.ctx.Done():
		t.Stop()
		return false
	}
}

// goroutineID returns the id of the calling goroutine, read from the
// header line of its stack trace ("goroutine 42 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

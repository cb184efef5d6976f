// Package watch renders a job progress stream in the terminal.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/stream"
	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	"github.com/schollz/progressbar/v3"
)

var log = logging.Logger("watch")

// ErrJobUnsuccessful is returned by Run when the job ended failed or
// cancelled.
var ErrJobUnsuccessful = errors.New("job did not complete successfully")

// Renderer turns progress snapshots into a progress bar, or into one JSON
// document per line.
type Renderer struct {
	out        io.Writer
	notices    io.Writer
	json       bool
	bar        *progressbar.ProgressBar
	barMax     int
	last       *models.JobProgressSnapshot
	reconnects int
}

// NewRenderer writes snapshots to out and connection notices to notices.
func NewRenderer(out, notices io.Writer, jsonLines bool) *Renderer {
	return &Renderer{out: out, notices: notices, json: jsonLines}
}

// Last returns the most recent snapshot, or nil before the first one.
func (r *Renderer) Last() *models.JobProgressSnapshot { return r.last }

// Progress renders one snapshot.
func (r *Renderer) Progress(snap models.JobProgressSnapshot) {
	r.last = &snap
	if r.json {
		if err := json.NewEncoder(r.out).Encode(snap); err != nil {
			log.Warnf("could not write snapshot: %v", err)
		}
		return
	}

	total := snap.TotalUnits
	if total <= 0 {
		total = -1
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("docs"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
		)
		r.barMax = total
	} else if total != r.barMax {
		r.bar.ChangeMax(total)
		r.barMax = total
	}
	r.bar.Describe(describe(snap))
	_ = r.bar.Set(snap.CompletedUnits + snap.FailedUnits)
}

// Reconnecting reports a dropped connection.
func (r *Renderer) Reconnecting(attempt int) {
	r.reconnects++
	fmt.Fprintf(r.notices, "\nconnection lost, reconnecting (attempt %d)...\n", attempt)
}

func describe(snap models.JobProgressSnapshot) string {
	switch {
	case snap.Phase != "" && snap.CurrentItem != "":
		return fmt.Sprintf("%s: %s", snap.Phase, snap.CurrentItem)
	case snap.Phase != "":
		return snap.Phase
	default:
		return string(snap.Status)
	}
}

// Summary describes the final state of the job.
func (r *Renderer) Summary() string {
	if r.last == nil {
		return "no progress received"
	}
	s := r.last
	msg := fmt.Sprintf("job %s %s: %s processed, %s failed, %s skipped",
		s.JobID, s.Status,
		humanize.Comma(int64(s.CompletedUnits)),
		humanize.Comma(int64(s.FailedUnits)),
		humanize.Comma(int64(len(s.SkippedItems))))
	if s.ElapsedSeconds != nil {
		msg += fmt.Sprintf(" in %ss", humanize.FtoaWithDigits(*s.ElapsedSeconds, 1))
	}
	if s.Throughput != nil {
		msg += fmt.Sprintf(" (%s docs/s)", humanize.FtoaWithDigits(*s.Throughput, 2))
	}
	if r.reconnects > 0 {
		msg += fmt.Sprintf(", %d reconnects", r.reconnects)
	}
	for _, e := range s.RecentErrors {
		msg += fmt.Sprintf("\n  %s: %s", e.Item, e.Error)
	}
	return msg
}

func (r *Renderer) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
		fmt.Fprintln(r.out)
	}
}

// Run streams jobID into r until the job ends, the stream fails, or ctx is
// cancelled. It returns the last snapshot received.
func Run(ctx context.Context, c *stream.Client, jobID string, r *Renderer) (*models.JobProgressSnapshot, error) {
	var streamErr error
	completed := false
	s, err := c.Open(jobID, stream.Callbacks{
		OnProgress:     r.Progress,
		OnComplete:     func() { completed = true },
		OnError:        func(err error) { streamErr = err },
		OnReconnecting: r.Reconnecting,
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Close()
		<-s.Done()
		r.finish()
		return r.last, ctx.Err()
	}
	r.finish()

	switch {
	case streamErr != nil:
		return r.last, streamErr
	case !completed:
		return r.last, stream.ErrStreamEnded
	case r.last != nil && r.last.Status != models.StatusCompleted:
		return r.last, fmt.Errorf("%w: status %s", ErrJobUnsuccessful, r.last.Status)
	}
	return r.last, nil
}

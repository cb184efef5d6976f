package stream

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleStream = "event: progress\n" +
	"data: {\"job_id\":123,\"status\":\"running\",\"progress_percent\":42.5}\n\n" +
	": keepalive\n\n" +
	"data: {\"job_id\":123,\n" +
	"data: \"status\":\"running\"}\n\n" +
	"event: complete\n" +
	"data: {\"job_id\":123,\"status\":\"completed\",\"progress_percent\":100}\n\n" +
	"event: error\n" +
	"data: {\"message\":\"boom\"}\n\n" +
	"event: progress\n" +
	"data: {\"job_id\":123"

func TestParserOneShot(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte(sampleStream))

	expected := []Frame{
		{Event: "progress", Data: `{"job_id":123,"status":"running","progress_percent":42.5}`},
		{Event: "message", Data: `{"job_id":123,"status":"running"}`},
		{Event: "complete", Data: `{"job_id":123,"status":"completed","progress_percent":100}`},
		{Event: "error", Data: `{"message":"boom"}`},
	}
	assert.Equal(t, expected, frames)
	assert.Equal(t, len("event: progress\ndata: {\"job_id\":123"), p.Buffered(), "incomplete trailing frame stays buffered")
}

func TestParserChunkBoundaryInvariance(t *testing.T) {
	var whole Parser
	expected := whole.Feed([]byte(sampleStream))

	// Every two-way split, including mid-line and mid-delimiter.
	for i := 0; i <= len(sampleStream); i++ {
		var p Parser
		got := append(p.Feed([]byte(sampleStream[:i])), p.Feed([]byte(sampleStream[i:]))...)
		assert.Equal(t, expected, got, "split at %d", i)
	}

	// Random chunkings with a fixed seed.
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		var p Parser
		var got []Frame
		rest := []byte(sampleStream)
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			got = append(got, p.Feed(rest[:n])...)
			rest = rest[n:]
		}
		assert.Equal(t, expected, got, "round %d", round)
	}
}

func TestParserCRLF(t *testing.T) {
	input := "event: progress\r\ndata: {\"a\":1}\r\n\r\nevent: complete\r\ndata: {}\r\n\r\n"
	var whole Parser
	expected := whole.Feed([]byte(input))
	assert.Equal(t, []Frame{
		{Event: "progress", Data: `{"a":1}`},
		{Event: "complete", Data: `{}`},
	}, expected)

	for i := 0; i <= len(input); i++ {
		var p Parser
		got := append(p.Feed([]byte(input[:i])), p.Feed([]byte(input[i:]))...)
		assert.Equal(t, expected, got, "split at %d", i)
	}
}

func TestParserIgnoresFramesWithoutData(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("event: progress\n\nid: 7\nretry: 100\n\n: only a comment\n\n"))
	assert.Empty(t, frames)
	assert.Zero(t, p.Buffered())
}

func TestParserDataWithoutSpace(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("event:progress\ndata:{\"x\":1}\n\n"))
	assert.Equal(t, []Frame{{Event: "progress", Data: `{"x":1}`}}, frames)
}

func TestParserReset(t *testing.T) {
	var p Parser
	assert.Empty(t, p.Feed([]byte("event: progress\ndata: {\"half\"")))
	p.Reset()
	frames := p.Feed([]byte("data: {}\n\n"))
	assert.Equal(t, []Frame{{Event: DefaultEvent, Data: "{}"}}, frames)
}

func TestParserLargeFrameInSmallChunks(t *testing.T) {
	payload := `{"note":"` + strings.Repeat("a", 64*1024) + `"}`
	input := "event: progress\r\ndata: " + payload + "\r\n\r\n"

	var p Parser
	var frames []Frame
	for i := 0; i < len(input); i += 7 {
		frames = append(frames, p.Feed([]byte(input[i:min(i+7, len(input))]))...)
	}
	assert.Equal(t, []Frame{{Event: "progress", Data: payload}}, frames)
	assert.Zero(t, p.Buffered())
}

func TestParserTrailingCarriageReturn(t *testing.T) {
	var p Parser
	assert.Empty(t, p.Feed([]byte("data: {}\r")))
	assert.Equal(t, len("data: {}\r"), p.Buffered())
	assert.Empty(t, p.Feed([]byte("\n\r")))
	assert.Equal(t, []Frame{{Event: DefaultEvent, Data: "{}"}}, p.Feed([]byte("\n")))

	// A lone carriage return is kept as data.
	p.Reset()
	assert.Empty(t, p.Feed([]byte("data: a\r")))
	assert.Equal(t, []Frame{{Event: DefaultEvent, Data: "a\rb"}}, p.Feed([]byte("b\n\n")))
}

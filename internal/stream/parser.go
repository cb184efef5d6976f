package stream

import (
	"bytes"
	"strings"
)

// DefaultEvent is the event name of a frame without an "event:" line.
const DefaultEvent = "message"

// Frame is one parsed text/event-stream event.
type Frame struct {
	Event string
	Data  string
}

// MaxFrameSize bounds the bytes buffered for one frame. A connection whose
// pending frame grows past it fails with ErrFrameTooLarge.
const MaxFrameSize = 1 << 20

// Parser turns an event-stream byte stream into frames. It keeps any
// incomplete trailing frame buffered until the next Feed, so the frames
// produced do not depend on how the input was split into chunks.
type Parser struct {
	buf []byte
	// scanned is how much of buf is known to hold no frame delimiter.
	scanned int
	// pendingCR is a "\r" that ended the last chunk. It is dropped if the
	// next chunk starts with "\n".
	pendingCR bool
}

var frameDelimiter = []byte("\n\n")

// Feed appends chunk to the buffer and returns every frame completed by it.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.append(chunk)

	var frames []Frame
	for {
		from := max(p.scanned-len(frameDelimiter)+1, 0)
		i := bytes.Index(p.buf[from:], frameDelimiter)
		if i < 0 {
			p.scanned = len(p.buf)
			break
		}
		i += from
		block := string(p.buf[:i])
		p.buf = p.buf[i+len(frameDelimiter):]
		p.scanned = 0
		if f, ok := parseFrame(block); ok {
			frames = append(frames, f)
		}
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return frames
}

// append adds chunk to the buffer with CRLF line endings turned into LF.
// Only the new bytes are rewritten.
func (p *Parser) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if p.pendingCR {
		p.pendingCR = false
		if chunk[0] != '\n' {
			p.buf = append(p.buf, '\r')
		}
	}
	if chunk[len(chunk)-1] == '\r' {
		p.pendingCR = true
		chunk = chunk[:len(chunk)-1]
	}
	for len(chunk) > 0 {
		i := bytes.Index(chunk, []byte("\r\n"))
		if i < 0 {
			p.buf = append(p.buf, chunk...)
			return
		}
		p.buf = append(p.buf, chunk[:i]...)
		p.buf = append(p.buf, '\n')
		chunk = chunk[i+2:]
	}
}

// Buffered returns the number of bytes waiting for a frame delimiter.
func (p *Parser) Buffered() int {
	if p.pendingCR {
		return len(p.buf) + 1
	}
	return len(p.buf)
}

// Reset drops any buffered partial frame. Used when a connection is
// replaced so that a half frame from the old body is never completed by
// bytes from the new one.
func (p *Parser) Reset() {
	p.buf = nil
	p.scanned = 0
	p.pendingCR = false
}

func parseFrame(block string) (Frame, bool) {
	f := Frame{Event: DefaultEvent}
	var data strings.Builder
	hasData := false

	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			if value != "" {
				f.Event = value
			}
		case "data":
			data.WriteString(value)
			hasData = true
		}
	}
	if !hasData {
		return Frame{}, false
	}
	f.Data = data.String()
	return f, true
}

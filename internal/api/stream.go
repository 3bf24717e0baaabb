package api

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// DoneSentinel begins the terminal log line the backend emits when a run's
// event stream is about to close.
const DoneSentinel = "[DONE]"

// IsDone reports whether a log line is the stream-end sentinel.
func IsDone(line string) bool {
	return strings.HasPrefix(line, DoneSentinel)
}

// RunStream is a live server-sent-event stream of run log lines. At most one
// stream should be open per client at a time; cancelling the context passed
// to OpenRun closes it.
type RunStream struct {
	resp    *http.Response
	scanner *bufio.Scanner
	err     error
	closed  bool
}

// OpenRun starts a backend run and returns its log stream. Each event payload
// is one free-text log line; the stream ends after the DoneSentinel line or
// on transport failure.
func (c *Client) OpenRun(ctx context.Context) (*RunStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/run", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open run stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open run stream: unexpected status %s", resp.Status)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &RunStream{resp: resp, scanner: sc}, nil
}

// Next returns the next log line. It blocks until a data frame arrives and
// returns ok=false once the stream has ended, cleanly or not; check Err to
// tell the two apart. Non-data SSE fields and keepalive comments are skipped.
func (s *RunStream) Next() (line string, ok bool) {
	if s.closed {
		return "", false
	}
	for s.scanner.Scan() {
		raw := s.scanner.Text()
		switch {
		case raw == "", strings.HasPrefix(raw, ":"):
			continue
		case strings.HasPrefix(raw, "data:"):
			return strings.TrimPrefix(strings.TrimPrefix(raw, "data:"), " "), true
		default:
			// event:/id:/retry: fields carry nothing for this consumer
			continue
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.err = err
	}
	return "", false
}

// Err returns the transport error that ended the stream, if any.
func (s *RunStream) Err() error { return s.err }

// Close releases the underlying connection. Safe to call more than once.
func (s *RunStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}

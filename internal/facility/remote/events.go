package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"firewatch.org/internal/facility"
)

// WatchIncidents streams incident events from GET /incidents/events and calls
// fn for each one until ctx is cancelled or the server ends the stream.
func (c *Client) WatchIncidents(ctx context.Context, fn func(facility.Event)) error {
	r := request{method: http.MethodGet, path: []string{"incidents", "events"}, authed: true}
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("watch incidents: %w", err)
	}
	defer resp.Body.Close()
	if err := c.check(ctx, r, req, resp); err != nil {
		return err
	}

	err = readEvents(resp.Body, func(data []byte) error {
		var evt facility.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("%w: event: %v", ErrMalformedResponse, err)
		}
		fn(evt)
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents splits a text/event-stream body into data payloads. Comment lines
// and fields other than data are ignored.
func readEvents(r io.Reader, dispatch func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxResponseBody)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if err := dispatch([]byte(data.String())); err != nil {
					return err
				}
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

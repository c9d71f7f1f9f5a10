package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"parley/internal/domain"
)

// Subscribe opens the relay's server-sent-events stream and decodes it
// onto a channel. The channel closes when the stream ends or ctx is
// cancelled; a closed channel means the membership cache can no longer
// be trusted and must be reloaded before the next send.
func (c *HTTP) Subscribe(ctx context.Context, token string) (<-chan domain.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, fmt.Errorf("relay subscribe: %s", resp.Status)
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue // comments, event names, blank keep-alives
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				c.Log.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.Log.Warn().Err(err).Msg("event stream closed")
		}
	}()
	return out, nil
}

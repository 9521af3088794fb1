package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const eventsPath = "/events"

// eventReadLimit bounds a single change-event message.
const eventReadLimit = 64 << 10

// Event is a change notification pushed by the server.
type Event struct {
	Type string    `json:"type"`
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// Subscription is an open change-event stream. It is not safe for
// concurrent Next calls.
type Subscription struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// ErrSubscriptionClosed is returned by Next after the server ends the stream
// normally or Close was called.
var ErrSubscriptionClosed = errors.New("api: event subscription closed")

// Subscribe opens the change-event stream. The handshake goes through the
// client's *http.Client, so a session pipeline authenticates it and, on a
// 401, refreshes and retries it like any other request.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	// Timeouts on a long-lived stream are the caller's ctx, not the client's.
	hc := *c.httpClient
	hc.Timeout = 0

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	header.Set(requestIDHeader, uuid.NewString())

	conn, resp, err := websocket.Dial(ctx, c.baseURL+eventsPath, &websocket.DialOptions{
		HTTPClient: &hc,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				RequestID:  responseRequestID(resp, header.Get(requestIDHeader)),
				Message:    "event stream handshake rejected",
				Err:        classifyStatus(resp.StatusCode),
			}
		}

		return nil, fmt.Errorf("api: subscribing to events: %w", err)
	}

	conn.SetReadLimit(eventReadLimit)

	c.logger.Info("subscribed to change events")

	return &Subscription{conn: conn, logger: c.logger}, nil
}

// Next blocks until the next event arrives.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	var ev Event

	if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return Event{}, ErrSubscriptionClosed
		}

		return Event{}, fmt.Errorf("api: reading event: %w", err)
	}

	s.logger.Debug("change event",
		slog.String("type", ev.Type),
		slog.String("path", ev.Path),
	)

	return ev, nil
}

// Close ends the stream.
func (s *Subscription) Close() error {
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("api: closing event subscription: %w", err)
	}

	return nil
}

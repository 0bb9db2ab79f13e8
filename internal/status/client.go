package status

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/huntbot/internal/bot/coordinator"
)

// Client reads the websocket status stream.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the status stream served at base, an http:// or ws:// URL
// of the status listener. username and password are sent as basic auth when
// username is non-empty.
//
// Postcondition: Returns a connected Client or a non-nil error.
func Dial(ctx context.Context, base, username, password string) (*Client, error) {
	u, err := StreamURL(base)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		header.Set("Authorization", "Basic "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", u, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", u, err)
	}
	return &Client{conn: conn}, nil
}

// StreamURL converts the status listener address into the /ws endpoint URL.
// A bare host:port is treated as http.
func StreamURL(base string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing status address %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported status address scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Next blocks until the next status report arrives.
func (c *Client) Next() (coordinator.Status, error) {
	var st coordinator.Status
	if err := c.conn.ReadJSON(&st); err != nil {
		return coordinator.Status{}, fmt.Errorf("reading status: %w", err)
	}
	return st, nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

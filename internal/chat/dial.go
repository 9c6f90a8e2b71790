package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Dialer opens a new session.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// WSDialer dials the server's websocket endpoint with a bearer token.
type WSDialer struct {
	URL    string
	Token  string
	Logger *slog.Logger
}

func (d WSDialer) Dial(ctx context.Context) (Session, error) {
	h := http.Header{}
	if d.Token != "" {
		h.Set("Authorization", "Bearer "+d.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %s", ErrTransportUnavailable, d.URL, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransportUnavailable, d.URL, err)
	}
	return NewClient(conn, d.Logger), nil
}

package notifyclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	push "socialhub/internal/microservices/websocket"

	"github.com/gorilla/websocket"
)

// Stream is one open push-channel connection
type Stream interface {
	// Read blocks for the next server frame. A frame that does not decode
	// yields an error wrapping ErrMalformedFrame and the stream stays usable.
	Read() (*push.Envelope, error)
	Write(env *push.Envelope) error
	Close() error
}

// Dialer opens push-channel connections
type Dialer interface {
	Dial(ctx context.Context, token string) (Stream, error)
}

// WSDialer dials the server's websocket endpoint, passing the credential as
// the token query parameter.
type WSDialer struct {
	URL    string
	Dialer *websocket.Dialer
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Stream, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid push url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Read() (*push.Envelope, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == push.CloseAuthFailed {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	env, err := push.EnvelopeFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

func (s *wsStream) Write(env *push.Envelope) error {
	data, err := env.ToJSON()
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

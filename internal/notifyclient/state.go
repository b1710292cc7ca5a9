package notifyclient

import (
	"errors"
)

// ConnectionState is where the connection manager currently is
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateLive         ConnectionState = "live"
	StateReconnecting ConnectionState = "reconnecting"
	StatePolling      ConnectionState = "polling"
	StateOffline      ConnectionState = "offline"
)

var (
	// ErrUnauthorized means the credential was rejected. It is never retried
	// until Reconnect is called, usually after SetToken.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("notification not found")
	ErrClosed       = errors.New("client closed")

	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrMalformedFrame   = errors.New("malformed push frame")
)

package chat

import "errors"

var (
	// ErrTransportUnavailable means no session is up. Queueable intents are
	// queued instead of failing.
	ErrTransportUnavailable = errors.New("chat: transport unavailable")
	ErrAckTimeout           = errors.New("chat: ack timeout")
	// ErrSendFailed is terminal: the intent hit the retry ceiling and sits
	// in the failed list until retried or abandoned.
	ErrSendFailed     = errors.New("chat: send failed")
	ErrRejected       = errors.New("chat: rejected by server")
	ErrResyncRequired = errors.New("chat: resync required")
	ErrMalformedEvent = errors.New("chat: malformed event")
	ErrClosed         = errors.New("chat: manager closed")
)

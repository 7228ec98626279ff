// Package transport wraps one peer-to-peer media session per
// (participant, plane). Descriptions and candidates cross the relay as
// opaque JSON; only this package knows their shape.
package transport

import (
	"encoding/json"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pkg/errors"
)

var (
	// ErrNoSender means there is no outbound sender of that kind to replace;
	// callers fall back to AddTrack and a fresh offer.
	ErrNoSender = errors.New("no sender for track kind")
	// ErrUnsupportedTrack is returned for tracks the transport cannot send.
	ErrUnsupportedTrack = errors.New("track cannot be sent on this transport")
	ErrClosed           = errors.New("transport closed")
)

// State is the connectivity state reported by the underlying connection.
type State string

const (
	StateNew          State = "new"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Events are invoked from transport goroutines; receivers must hand them
// back to their own event loop.
type Events struct {
	OnCandidate   func(candidate json.RawMessage)
	OnTrack       func(streamID string, kind media.Kind)
	OnStateChange func(state State)
}

// Transport is one negotiated media session with a single remote peer.
type Transport interface {
	AddTrack(t media.Track) error
	// ReplaceTrack swaps the outbound track of kind without renegotiating.
	// A nil track detaches the sender.
	ReplaceTrack(kind media.Kind, t media.Track) error
	// RemoveTrack stops sending kind; the change needs a fresh offer.
	RemoveTrack(kind media.Kind) error
	Outbound(kind media.Kind) media.Track
	// Receive asks for kind from the remote side even when we send none,
	// so our offers always carry a media section for it.
	Receive(kind media.Kind) error

	CreateOffer() (json.RawMessage, error)
	Answer(offer json.RawMessage) (json.RawMessage, error)
	SetAnswer(answer json.RawMessage) error
	// Rollback drops an unanswered local offer. It is a no-op when there
	// is none.
	Rollback() error
	// AddCandidate queues candidates that arrive before the remote
	// description and applies them once it is set.
	AddCandidate(candidate json.RawMessage) error

	Close() error
}

// Factory creates transports for session keys.
type Factory interface {
	New(key models.SessionKey, ev Events) (Transport, error)
}

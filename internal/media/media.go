// Package media models local capture: tracks that can be muted in place,
// stopped, and that report when the source ends on its own.
package media

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Kind is the media type of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ErrDenied is returned by devices when the user refuses access.
var ErrDenied = errors.New("media access denied")

// Track is a local capture track.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	// Live reports false once the track was stopped or its source ended.
	Live() bool
	Stop()
	// OnEnded registers fn to run when the source ends by itself (not on Stop).
	OnEnded(fn func())
}

// Constraints select which tracks a device should produce.
type Constraints struct {
	Audio bool
	Video bool
}

// Device acquires local media. Calls may block for as long as the user
// takes to answer a permission prompt.
type Device interface {
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	DisplayMedia(ctx context.Context) (*Stream, error)
}

// BaseTrack implements Track without any encoder behind it.
type BaseTrack struct {
	id   string
	kind Kind

	mu      sync.Mutex
	enabled bool
	stopped bool
	onEnded []func()
}

func NewTrack(id string, kind Kind) *BaseTrack {
	return &BaseTrack{id: id, kind: kind, enabled: true}
}

func (t *BaseTrack) ID() string { return t.id }
func (t *BaseTrack) Kind() Kind { return t.kind }

func (t *BaseTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *BaseTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *BaseTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *BaseTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *BaseTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

// End marks the source as gone and fires the OnEnded callbacks, the way a
// browser does when the user stops sharing from its own controls.
func (t *BaseTrack) End() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	callbacks := t.onEnded
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Stream groups tracks sent together under one id.
type Stream struct {
	ID     string
	tracks []Track
}

func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{ID: id, tracks: tracks}
}

func (s *Stream) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}

func (s *Stream) AddTrack(t Track) {
	s.tracks = append(s.tracks, t)
}

// SetTrack replaces the track of t's kind, or adds t if there is none.
func (s *Stream) SetTrack(t Track) {
	for i, cur := range s.tracks {
		if cur.Kind() == t.Kind() {
			s.tracks[i] = t
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

// Track returns the first track of kind, or nil.
func (s *Stream) Track(kind Kind) Track {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// Stop stops every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

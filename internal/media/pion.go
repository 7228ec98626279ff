package media

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"
)

// SampleTrack is a Track backed by a pion static sample track, so it can
// be attached to a real peer connection.
type SampleTrack struct {
	*BaseTrack
	local *webrtc.TrackLocalStaticSample
}

// NewSampleTrack creates an Opus (audio) or VP8 (video) track.
func NewSampleTrack(kind Kind, streamID string) (*SampleTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if kind == KindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}

	id := fmt.Sprintf("%s-%s", kind, uuid.New().String())
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s track", kind)
	}
	return &SampleTrack{BaseTrack: NewTrack(id, kind), local: local}, nil
}

// TrackLocal exposes the pion track for peer connections.
func (t *SampleTrack) TrackLocal() webrtc.TrackLocal {
	return t.local
}

// WriteSample sends a frame; muted or stopped tracks silently drop it.
func (t *SampleTrack) WriteSample(s pionmedia.Sample) error {
	if !t.Enabled() || !t.Live() {
		return nil
	}
	return t.local.WriteSample(s)
}

// SyntheticDevice hands out sample tracks instead of real capture. Feeding
// them is up to the caller. The Deny flags simulate refused permissions.
type SyntheticDevice struct {
	DenyAudio  bool
	DenyVideo  bool
	DenyScreen bool

	screens atomic.Int32
}

func (d *SyntheticDevice) UserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if (c.Audio && d.DenyAudio) || (c.Video && d.DenyVideo) || (!c.Audio && !c.Video) {
		return nil, ErrDenied
	}

	stream := NewStream("camera-" + uuid.New().String())
	if c.Audio {
		t, err := NewSampleTrack(KindAudio, stream.ID)
		if err != nil {
			return nil, err
		}
		stream.AddTrack(t)
	}
	if c.Video {
		t, err := NewSampleTrack(KindVideo, stream.ID)
		if err != nil {
			return nil, err
		}
		stream.AddTrack(t)
	}
	return stream, nil
}

func (d *SyntheticDevice) DisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.DenyScreen {
		return nil, ErrDenied
	}

	stream := NewStream(fmt.Sprintf("screen-%d", d.screens.Add(1)))
	t, err := NewSampleTrack(KindVideo, stream.ID)
	if err != nil {
		return nil, err
	}
	stream.AddTrack(t)
	return stream, nil
}

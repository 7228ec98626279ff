package media

import (
	"context"
	"testing"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"
)

func TestBaseTrack_EndFiresOnce(t *testing.T) {
	tr := NewTrack("v1", KindVideo)
	calls := 0
	tr.OnEnded(func() { calls++ })

	tr.End()
	tr.End()

	if calls != 1 {
		t.Errorf("expected 1 ended callback, got %d", calls)
	}
	if tr.Live() {
		t.Error("ended track must not be live")
	}
}

func TestBaseTrack_StopDoesNotFireEnded(t *testing.T) {
	tr := NewTrack("v1", KindVideo)
	fired := false
	tr.OnEnded(func() { fired = true })

	tr.Stop()
	tr.End()

	if fired {
		t.Error("explicit stop must not be reported as a native end")
	}
}

func TestStream_TrackByKind(t *testing.T) {
	a, v := NewTrack("a", KindAudio), NewTrack("v", KindVideo)
	s := NewStream("s", a, v)

	if s.Track(KindVideo) != v || s.Track(KindAudio) != a {
		t.Error("unexpected track lookup")
	}
	v2 := NewTrack("v2", KindVideo)
	s.SetTrack(v2)
	if s.Track(KindVideo) != v2 || len(s.Tracks()) != 2 {
		t.Error("expected video track to be replaced in place")
	}

	s.Stop()
	if a.Live() || v2.Live() {
		t.Error("expected stream stop to stop all tracks")
	}
}

func TestSyntheticDevice(t *testing.T) {
	ctx := context.Background()
	d := &SyntheticDevice{DenyVideo: true}

	if _, err := d.UserMedia(ctx, Constraints{Audio: true, Video: true}); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}

	s, err := d.UserMedia(ctx, Constraints{Audio: true})
	if err != nil {
		t.Fatalf("audio only: %v", err)
	}
	if s.Track(KindAudio) == nil || s.Track(KindVideo) != nil {
		t.Errorf("expected audio only stream, got %d tracks", len(s.Tracks()))
	}

	screen, err := d.DisplayMedia(ctx)
	if err != nil {
		t.Fatalf("display: %v", err)
	}
	if _, ok := screen.Track(KindVideo).(*SampleTrack); !ok {
		t.Error("expected a pion backed screen track")
	}
}

func TestSampleTrack_MutedDropsSamples(t *testing.T) {
	tr, err := NewSampleTrack(KindVideo, "s")
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	tr.SetEnabled(false)

	// not bound to any connection; a muted write must short-circuit
	if err := tr.WriteSample(pionmedia.Sample{Data: []byte{0x01}, Duration: time.Millisecond}); err != nil {
		t.Errorf("expected muted write to be dropped, got %v", err)
	}
	if tr.TrackLocal().Kind().String() != "video" {
		t.Errorf("unexpected pion kind %s", tr.TrackLocal().Kind())
	}
}

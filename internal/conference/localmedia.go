package conference

import (
	"context"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/view"
	"github.com/pkg/errors"
)

// SetAudio mutes or unmutes the microphone in place.
func (m *Manager) SetAudio(ctx context.Context, on bool) error {
	return m.setLocal(ctx, media.KindAudio, on)
}

// SetVideo turns the camera on or off in place. Turning it on when it was
// never granted asks the device again and adds the new track to every
// camera session.
func (m *Manager) SetVideo(ctx context.Context, on bool) error {
	return m.setLocal(ctx, media.KindVideo, on)
}

func (m *Manager) setLocal(ctx context.Context, kind media.Kind, on bool) error {
	missing := false
	err := m.do(func() error {
		m.setWanted(kind, on)

		var t media.Track
		if m.camera != nil {
			t = m.camera.Track(kind)
		}
		if t == nil || !t.Live() {
			if on {
				missing = true
				return nil
			}
			return m.sync.BroadcastStatus(kind, false)
		}
		t.SetEnabled(on)
		return m.sync.BroadcastStatus(kind, on)
	})
	if err != nil || !missing {
		return err
	}

	c := media.Constraints{Audio: kind == media.KindAudio, Video: kind == media.KindVideo}
	stream, err := m.device.UserMedia(ctx, c)
	if err != nil {
		m.notify(SeverityWarning, "Could not access "+deviceName(kind), err)
		return errors.Wrapf(err, "acquire %s", kind)
	}

	err = m.do(func() error {
		t := stream.Track(kind)
		if t == nil {
			return errors.Errorf("device returned no %s track", kind)
		}
		m.attachLocal(t)
		return m.sync.BroadcastStatus(kind, true)
	})
	if errors.Is(err, ErrLeft) {
		stream.Stop()
	}
	return err
}

func (m *Manager) setWanted(kind media.Kind, on bool) {
	if kind == media.KindVideo {
		m.videoOn = on
	} else {
		m.audioOn = on
	}
}

func deviceName(kind media.Kind) string {
	if kind == media.KindVideo {
		return "camera"
	}
	return "microphone"
}

// attachLocal makes t the local camera-plane track of its kind and pushes
// it to every camera session.
func (m *Manager) attachLocal(t media.Track) {
	if m.camera == nil {
		m.camera = media.NewStream("camera-local")
		m.view.Add(models.CameraKey(models.LocalPeer), m.camera.ID, m.localLabel())
	}
	m.camera.SetTrack(t)

	if t.Kind() == media.KindVideo {
		m.cameraVideo = t
		t.SetEnabled(m.videoOn)
	} else {
		t.SetEnabled(m.audioOn)
	}

	for key, s := range m.sessions {
		if key.Plane != models.PlaneCamera {
			continue
		}
		m.pushTrack(s, t)
	}
}

// StartScreenShare captures the screen and opens a screen session to every
// participant. Failing to capture aborts only the share.
func (m *Manager) StartScreenShare(ctx context.Context) error {
	err := m.do(func() error {
		if m.screen != nil {
			return ErrAlreadySharing
		}
		return nil
	})
	if err != nil {
		return err
	}

	stream, err := m.device.DisplayMedia(ctx)
	if err != nil {
		m.notify(SeverityWarning, "Could not start screen sharing", err)
		return errors.Wrap(err, "capture screen")
	}
	track := stream.Track(media.KindVideo)
	if track == nil {
		stream.Stop()
		return errors.New("screen capture has no video track")
	}

	err = m.do(func() error {
		if m.screen != nil {
			stream.Stop()
			return ErrAlreadySharing
		}
		m.screen = stream
		m.view.Add(models.ScreenKey(models.LocalPeer), stream.ID, view.ScreenLabel(m.localLabel()))

		for peer := range m.participants {
			key := models.ScreenKey(peer)
			if s, ok := m.sessions[key]; ok {
				// the peer is sharing to us on this key already
				if err := s.transport.AddTrack(track); err != nil {
					m.sessionLog(key).Errorf("add screen track: %v", err)
					continue
				}
				m.offer(s)
				continue
			}
			s, err := m.createSession(key)
			if err != nil {
				m.sessionLog(key).Errorf("create session: %v", err)
				continue
			}
			m.offer(s)
		}
		m.log.Infof("Screen sharing started with %d participants", len(m.participants))
		return nil
	})
	if errors.Is(err, ErrLeft) {
		stream.Stop()
	}
	if err != nil {
		return err
	}

	// The capture can end from outside, e.g. the system's own stop control.
	track.OnEnded(func() {
		go func() {
			if err := m.stopScreenShare(context.Background(), stream); err != nil && !errors.Is(err, ErrLeft) {
				m.log.Warnf("stop screen share: %v", err)
			}
		}()
	})
	return nil
}

// StopScreenShare closes the screen sessions and puts the camera back on
// every camera session.
func (m *Manager) StopScreenShare(ctx context.Context) error {
	return m.stopScreenShare(ctx, nil)
}

// stopScreenShare stops the active share, or only the given one when
// stream is set so a stale end event cannot stop a newer share.
func (m *Manager) stopScreenShare(ctx context.Context, stream *media.Stream) error {
	reacquire := false
	err := m.do(func() error {
		if m.screen == nil || (stream != nil && m.screen != stream) {
			return nil
		}
		m.teardownScreen()
		reacquire = !m.restoreCamera()
		return nil
	})
	if err != nil || !reacquire {
		return err
	}
	return m.recoverCamera(ctx)
}

func (m *Manager) teardownScreen() {
	for key, s := range m.sessions {
		if key.Plane != models.PlaneScreen {
			continue
		}
		if s.inbound {
			// still receiving the peer's screen on this key
			if err := s.transport.RemoveTrack(media.KindVideo); err != nil {
				m.sessionLog(key).Warnf("detach screen track: %v", err)
				continue
			}
			m.offer(s)
			continue
		}
		m.closeSession(s)
	}

	m.view.Remove(models.ScreenKey(models.LocalPeer))
	m.screen.Stop()
	m.screen = nil

	m.send(models.SignalMessage{Type: models.SignalTypeScreenStopped})
	m.log.Info("Screen sharing stopped")
}

// restoreCamera puts the retained camera track back on every camera
// session. It reports false when the track is gone and the camera must be
// acquired again.
func (m *Manager) restoreCamera() bool {
	t := m.cameraVideo
	if t == nil || !t.Live() {
		return !m.videoOn
	}

	if m.camera == nil {
		m.camera = media.NewStream("camera-local")
	}
	m.camera.SetTrack(t)
	t.SetEnabled(m.videoOn)

	for key, s := range m.sessions {
		if key.Plane != models.PlaneCamera {
			continue
		}
		if s.transport.Outbound(media.KindVideo) == t {
			continue
		}
		m.pushTrack(s, t)
	}
	return true
}

func (m *Manager) recoverCamera(ctx context.Context) error {
	m.log.Warn("Camera track lost, acquiring it again")

	stream, err := m.device.UserMedia(ctx, media.Constraints{Video: true})
	if err != nil {
		m.notify(SeverityWarning, "Failed to restore camera, turn it on again to retry", err)
		return errors.Wrapf(ErrCameraRecovery, "acquire camera: %v", err)
	}

	err = m.do(func() error {
		t := stream.Track(media.KindVideo)
		if t == nil {
			return ErrCameraRecovery
		}
		m.attachLocal(t)
		m.log.Info("Camera restored")
		return nil
	})
	if errors.Is(err, ErrLeft) {
		stream.Stop()
	}
	return err
}

// Pin and Unpin act on the view only; sessions are untouched.
func (m *Manager) Pin(key models.SessionKey) error {
	return m.view.Pin(key)
}

func (m *Manager) Unpin() {
	m.view.Unpin()
}

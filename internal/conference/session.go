package conference

import (
	"encoding/json"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/transport"
	"github.com/mossy-p/meet-signaling/internal/view"
	"github.com/sirupsen/logrus"
)

// State is the negotiation state of one session.
type State string

const (
	StateNew       State = "new"
	StateOffering  State = "offering"
	StateAnswering State = "answering"
	StateAnswered  State = "answered"
	StateConnected State = "connected"
	StateClosed    State = "closed"
)

type session struct {
	key       models.SessionKey
	state     State
	transport transport.Transport

	// set between sending an offer and applying its answer
	offerPending bool

	// set while the remote side is sending us a stream on this session
	inbound      bool
	remoteStream string
}

// SessionInfo describes a live session.
type SessionInfo struct {
	Key          models.SessionKey
	State        State
	RemoteStream string
}

func (m *Manager) sessionLog(key models.SessionKey) logrus.FieldLogger {
	return m.log.WithFields(logrus.Fields{"peer": key.PeerID, "plane": key.Plane})
}

// createSession builds the session for key and attaches the local tracks
// of its plane. Callers must have checked that key is unused.
func (m *Manager) createSession(key models.SessionKey) (*session, error) {
	s := &session{key: key, state: StateNew}

	tr, err := m.factory.New(key, transport.Events{
		OnCandidate: func(c json.RawMessage) {
			m.post(func() { m.localCandidate(s, c) })
		},
		OnTrack: func(streamID string, _ media.Kind) {
			m.post(func() { m.remoteStream(s, streamID) })
		},
		OnStateChange: func(st transport.State) {
			m.post(func() { m.transportState(s, st) })
		},
	})
	if err != nil {
		return nil, err
	}
	s.transport = tr
	m.sessions[key] = s

	for _, t := range m.localTracks(key.Plane) {
		if err := tr.AddTrack(t); err != nil {
			m.sessionLog(key).Warnf("attach %s track: %v", t.Kind(), err)
		}
	}
	if key.Plane == models.PlaneCamera {
		// camera sessions always negotiate both kinds, sent or not
		for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
			if tr.Outbound(kind) != nil {
				continue
			}
			if err := tr.Receive(kind); err != nil {
				m.sessionLog(key).Warnf("receive %s: %v", kind, err)
			}
		}
	}

	m.sessionLog(key).Debug("session created")
	return s, nil
}

// localTracks returns what we send on a plane: camera and mic, or the
// active screen capture.
func (m *Manager) localTracks(plane models.Plane) []media.Track {
	var out []media.Track
	switch plane {
	case models.PlaneScreen:
		if m.screen != nil {
			if t := m.screen.Track(media.KindVideo); t != nil && t.Live() {
				out = append(out, t)
			}
		}
	default:
		if m.camera != nil {
			for _, t := range m.camera.Tracks() {
				if t.Live() {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

func (m *Manager) offer(s *session) {
	sdp, err := s.transport.CreateOffer()
	if err != nil {
		m.sessionLog(s.key).Errorf("create offer: %v", err)
		return
	}
	s.state = StateOffering
	s.offerPending = true
	m.send(models.SignalMessage{
		Type:          models.SignalTypeOffer,
		To:            s.key.PeerID,
		Payload:       sdp,
		IsScreenShare: s.key.Plane == models.PlaneScreen,
	})
}

// pushTrack puts t on s by track replacement, and falls back to adding
// the track and renegotiating.
func (m *Manager) pushTrack(s *session, t media.Track) {
	err := s.transport.ReplaceTrack(t.Kind(), t)
	if err == nil {
		return
	}
	log := m.sessionLog(s.key)
	log.Debugf("replace %s track failed, renegotiating: %v", t.Kind(), err)

	if err := s.transport.AddTrack(t); err != nil {
		log.Errorf("add %s track: %v", t.Kind(), err)
		return
	}
	m.offer(s)
}

func (m *Manager) closeSession(s *session) {
	if err := s.transport.Close(); err != nil {
		m.sessionLog(s.key).Warnf("close transport: %v", err)
	}
	s.state = StateClosed
	if m.sessions[s.key] == s {
		delete(m.sessions, s.key)
	}
	m.sessionLog(s.key).Debug("session closed")
}

// current reports whether s is still the live session for its key; events
// of replaced or closed sessions are dropped.
func (m *Manager) current(s *session) bool {
	return !m.left && m.sessions[s.key] == s
}

func (m *Manager) localCandidate(s *session, c json.RawMessage) {
	if !m.current(s) {
		return
	}
	m.send(models.SignalMessage{
		Type:          models.SignalTypeCandidate,
		To:            s.key.PeerID,
		Payload:       c,
		IsScreenShare: s.key.Plane == models.PlaneScreen,
	})
}

func (m *Manager) remoteStream(s *session, streamID string) {
	if !m.current(s) {
		return
	}
	s.inbound = true
	s.remoteStream = streamID
	s.state = StateConnected

	name := m.presence.Name(s.key.PeerID)
	if s.key.Plane == models.PlaneScreen {
		name = view.ScreenLabel(name)
	}
	m.view.Add(s.key, streamID, name)
}

func (m *Manager) transportState(s *session, st transport.State) {
	if !m.current(s) {
		return
	}
	log := m.sessionLog(s.key)
	switch st {
	case transport.StateFailed:
		log.Warn("transport failed")
	case transport.StateDisconnected:
		log.Info("transport disconnected")
	default:
		log.Debugf("transport %s", st)
	}
}

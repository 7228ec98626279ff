package conference

import (
	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/sirupsen/logrus"
)

func (m *Manager) onRoomJoined(msg models.SignalMessage) {
	m.selfID = msg.UserID
	m.countHint = msg.Count
	m.log.WithFields(logrus.Fields{"self": m.selfID, "room": msg.RoomID}).Infof("Joined room with %d others", msg.Count)

	if m.name != "" {
		if err := m.sync.BroadcastName(m.name); err != nil {
			m.log.Warnf("broadcast name: %v", err)
		}
	}
}

// onUserConnected starts negotiation with a newcomer: it is the existing
// members that offer.
func (m *Manager) onUserConnected(msg models.SignalMessage) {
	peer := msg.Subject()
	if peer == "" || peer == m.selfID {
		return
	}
	m.participants[peer] = struct{}{}

	if err := m.sync.SendNameTo(peer); err != nil {
		m.log.Warnf("send name to %s: %v", peer, err)
	}
	m.send(models.SignalMessage{Type: models.SignalTypePeerCount, To: peer, Count: len(m.participants)})

	keys := []models.SessionKey{models.CameraKey(peer)}
	if m.screen != nil {
		keys = append(keys, models.ScreenKey(peer))
	}
	for _, key := range keys {
		if _, ok := m.sessions[key]; ok {
			m.sessionLog(key).Debug("duplicate join, session exists")
			continue
		}
		s, err := m.createSession(key)
		if err != nil {
			m.sessionLog(key).Errorf("create session: %v", err)
			continue
		}
		m.offer(s)
	}
}

func (m *Manager) onUserLeft(msg models.SignalMessage) {
	peer := msg.Subject()
	delete(m.participants, peer)
	m.countHint = 0

	for _, key := range []models.SessionKey{models.CameraKey(peer), models.ScreenKey(peer)} {
		if s, ok := m.sessions[key]; ok {
			m.closeSession(s)
		}
	}
	if m.view.RemovePeer(peer) {
		m.log.WithField("peer", peer).Info("Pinned participant left, back to grid")
	}
	m.presence.Remove(peer)
	m.log.WithField("peer", peer).Info("Participant left")
}

// onOffer answers on the existing session of the key if there is one, so
// a repeated offer renegotiates instead of creating a second session.
// When both sides offered at once, the side with the lower id drops its
// own offer, answers, and then offers again; the other side ignores the
// colliding offer and waits for that answer.
func (m *Manager) onOffer(msg models.SignalMessage) {
	key := models.SessionKey{PeerID: msg.From, Plane: msg.Plane()}
	m.participants[msg.From] = struct{}{}

	s, ok := m.sessions[key]
	collided := ok && s.offerPending
	if collided {
		if m.selfID > msg.From {
			m.sessionLog(key).Debug("offer collision, keeping our offer")
			return
		}
		if err := s.transport.Rollback(); err != nil {
			m.sessionLog(key).Errorf("roll back offer: %v", err)
			return
		}
		s.offerPending = false
		m.sessionLog(key).Debug("offer collision, answering theirs")
	}
	if !ok {
		var err error
		if s, err = m.createSession(key); err != nil {
			m.sessionLog(key).Errorf("create session: %v", err)
			return
		}
	}

	answer, err := s.transport.Answer(msg.Payload)
	if err != nil {
		m.sessionLog(key).Errorf("answer offer: %v", err)
		return
	}
	if s.state != StateConnected {
		s.state = StateAnswering
	}
	m.send(models.SignalMessage{
		Type:          models.SignalTypeAnswer,
		To:            msg.From,
		Payload:       answer,
		IsScreenShare: msg.IsScreenShare,
	})

	if collided {
		m.offer(s)
	}
}

func (m *Manager) onAnswer(msg models.SignalMessage) {
	key := models.SessionKey{PeerID: msg.From, Plane: msg.Plane()}
	s, ok := m.sessions[key]
	if !ok {
		m.sessionLog(key).Debug("dropping answer for unknown session")
		return
	}
	if err := s.transport.SetAnswer(msg.Payload); err != nil {
		m.sessionLog(key).Warnf("set answer: %v", err)
		return
	}
	s.offerPending = false
	if s.state != StateConnected {
		s.state = StateAnswered
	}
}

func (m *Manager) onCandidate(msg models.SignalMessage) {
	key := models.SessionKey{PeerID: msg.From, Plane: msg.Plane()}
	s, ok := m.sessions[key]
	if !ok {
		m.sessionLog(key).Debug("dropping candidate for unknown session")
		return
	}
	if err := s.transport.AddCandidate(msg.Payload); err != nil {
		m.sessionLog(key).Warnf("add candidate: %v", err)
	}
}

func (m *Manager) onNameUpdate(msg models.SignalMessage) {
	peer := msg.Subject()
	if peer == "" || peer == m.selfID {
		return
	}
	m.presence.UpdateName(peer, msg.Name)
}

func (m *Manager) onChat(msg models.SignalMessage) {
	m.presence.AddChat(msg.From, msg.SenderName, msg.Message)
}

func (m *Manager) onStatus(msg models.SignalMessage) {
	if msg.IsOn == nil {
		return
	}
	kind := media.KindAudio
	if msg.Type == models.SignalTypeVideoStatus {
		kind = media.KindVideo
	}
	m.presence.SetStatus(msg.From, kind, *msg.IsOn)
}

func (m *Manager) onReaction(msg models.SignalMessage) {
	if msg.Emoji == "" {
		return
	}
	m.notify(SeverityInfo, m.presence.Name(msg.From)+" reacted "+msg.Emoji, nil)
}

func (m *Manager) onRaiseHand(msg models.SignalMessage) {
	h := m.presence.RaiseHand(msg.From)
	m.notify(SeverityInfo, h.Text, nil)
}

func (m *Manager) onLowerHand(msg models.SignalMessage) {
	m.presence.LowerHand(msg.From)
}

// onScreenStopped drops the remote screen tile. The session stays open
// while we are still sharing on it ourselves.
func (m *Manager) onScreenStopped(msg models.SignalMessage) {
	key := models.ScreenKey(msg.From)
	m.view.Remove(key)

	s, ok := m.sessions[key]
	if !ok {
		return
	}
	s.inbound = false
	s.remoteStream = ""
	if m.screen == nil {
		m.closeSession(s)
	}
}

// onPeerCount only corrects our count upwards; join and leave events stay
// authoritative.
func (m *Manager) onPeerCount(msg models.SignalMessage) {
	if msg.Count > m.countHint {
		m.countHint = msg.Count
	}
}

func (m *Manager) onError(msg models.SignalMessage) {
	m.log.Warnf("relay error: %s", msg.Error)
	m.notify(SeverityWarning, msg.Error, nil)
}

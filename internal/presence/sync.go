package presence

import (
	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pkg/errors"
)

// Sender delivers a message to the relay.
type Sender interface {
	Send(msg models.SignalMessage) error
}

// Sync announces local presence changes. Messages without a target are
// fanned out by the relay to the rest of the room.
type Sync struct {
	sender Sender
	dir    *Directory
	name   string
}

func NewSync(sender Sender, dir *Directory) *Sync {
	return &Sync{sender: sender, dir: dir}
}

func (s *Sync) BroadcastName(name string) error {
	if name == "" {
		return errors.New("empty display name")
	}
	s.name = name
	s.dir.UpdateName(models.LocalPeer, name)
	return s.sender.Send(models.SignalMessage{Type: models.SignalTypeNameUpdate, Name: name})
}

// SendNameTo repeats the local name to one participant. A no-op until a
// name has been broadcast.
func (s *Sync) SendNameTo(peerID string) error {
	if s.name == "" {
		return nil
	}
	return s.sender.Send(models.SignalMessage{Type: models.SignalTypeNameUpdate, To: peerID, Name: s.name})
}

func (s *Sync) BroadcastStatus(kind media.Kind, on bool) error {
	t := models.SignalTypeMicStatus
	if kind == media.KindVideo {
		t = models.SignalTypeVideoStatus
	}
	s.dir.SetStatus(models.LocalPeer, kind, on)
	return s.sender.Send(models.SignalMessage{Type: t, IsOn: models.Bool(on)})
}

func (s *Sync) SendChat(message string) error {
	if message == "" {
		return nil
	}
	s.dir.AddChat(models.LocalPeer, s.name, message)
	// the relay fills in a placeholder when we have no name yet
	return s.sender.Send(models.SignalMessage{
		Type:       models.SignalTypeChat,
		Message:    message,
		SenderName: s.name,
	})
}

func (s *Sync) SendReaction(emoji string) error {
	return s.sender.Send(models.SignalMessage{Type: models.SignalTypeReaction, Emoji: emoji})
}

func (s *Sync) RaiseHand() error {
	s.dir.RaiseHand(models.LocalPeer)
	return s.sender.Send(models.SignalMessage{Type: models.SignalTypeRaiseHand})
}

func (s *Sync) LowerHand() error {
	s.dir.LowerHand(models.LocalPeer)
	return s.sender.Send(models.SignalMessage{Type: models.SignalTypeLowerHand})
}

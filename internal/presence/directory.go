// Package presence keeps what the client knows about other participants
// besides their media: display names, mic/camera status, chat history and
// raised hands.
package presence

import (
	"sync"
	"time"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
)

// Status is the last mic/camera state a participant announced.
type Status struct {
	Audio bool
	Video bool
}

type ChatEntry struct {
	SenderID   string
	SenderName string
	Message    string
	At         time.Time
}

type HandNotice struct {
	PeerID string
	Text   string
}

// Labeler updates every tile that shows a participant's name.
type Labeler interface {
	Relabel(peerID, name string)
}

type Directory struct {
	mu      sync.Mutex
	names   map[string]string
	status  map[string]Status
	chat    []ChatEntry
	hands   []HandNotice
	labeler Labeler
}

func NewDirectory(labeler Labeler) *Directory {
	return &Directory{
		names:   make(map[string]string),
		status:  make(map[string]Status),
		labeler: labeler,
	}
}

// Name returns the display name of id, or its placeholder.
func (d *Directory) Name(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nameLocked(id)
}

func (d *Directory) nameLocked(id string) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return models.DefaultName(id)
}

// UpdateName records a new name for id and backfills it into chat
// attribution, raised-hand notices and tile labels.
func (d *Directory) UpdateName(id, name string) {
	if name == "" {
		return
	}

	d.mu.Lock()
	d.names[id] = name
	for i := range d.chat {
		if d.chat[i].SenderID == id {
			d.chat[i].SenderName = name
		}
	}
	for i := range d.hands {
		if d.hands[i].PeerID == id {
			d.hands[i].Text = handText(name)
		}
	}
	d.mu.Unlock()

	if d.labeler != nil {
		d.labeler.Relabel(id, name)
	}
}

func (d *Directory) SetStatus(id string, kind media.Kind, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.statusLocked(id)
	switch kind {
	case media.KindAudio:
		s.Audio = on
	case media.KindVideo:
		s.Video = on
	}
	d.status[id] = s
}

// Status defaults to both on until the participant says otherwise.
func (d *Directory) Status(id string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked(id)
}

func (d *Directory) statusLocked(id string) Status {
	if s, ok := d.status[id]; ok {
		return s
	}
	return Status{Audio: true, Video: true}
}

// AddChat appends a message. An empty senderName falls back to what the
// directory knows about senderID.
func (d *Directory) AddChat(senderID, senderName, message string) ChatEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	if known, ok := d.names[senderID]; ok {
		senderName = known
	} else if senderName == "" {
		senderName = d.nameLocked(senderID)
	}

	entry := ChatEntry{SenderID: senderID, SenderName: senderName, Message: message, At: time.Now()}
	d.chat = append(d.chat, entry)
	return entry
}

func (d *Directory) Chat() []ChatEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ChatEntry(nil), d.chat...)
}

// RaiseHand records a notice for id. Raising twice keeps one notice.
func (d *Directory) RaiseHand(id string) HandNotice {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range d.hands {
		if h.PeerID == id {
			return h
		}
	}
	h := HandNotice{PeerID: id, Text: handText(d.nameLocked(id))}
	d.hands = append(d.hands, h)
	return h
}

func (d *Directory) LowerHand(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lowerLocked(id)
}

func (d *Directory) lowerLocked(id string) {
	for i, h := range d.hands {
		if h.PeerID == id {
			d.hands = append(d.hands[:i], d.hands[i+1:]...)
			return
		}
	}
}

func (d *Directory) Hands() []HandNotice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]HandNotice(nil), d.hands...)
}

// Remove forgets a departed participant's status and raised hand. The name
// is kept so chat history stays attributed.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.status, id)
	d.lowerLocked(id)
}

func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = make(map[string]string)
	d.status = make(map[string]Status)
	d.chat = nil
	d.hands = nil
}

func handText(name string) string {
	return name + " raised their hand"
}

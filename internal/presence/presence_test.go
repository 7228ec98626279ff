package presence

import (
	"io"
	"testing"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/view"
	"github.com/sirupsen/logrus"
)

type mockSender struct {
	sent []models.SignalMessage
}

func (m *mockSender) Send(msg models.SignalMessage) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newTestView() *view.Coordinator {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return view.NewCoordinator(l)
}

func TestUpdateName_BackfillsChatAndTiles(t *testing.T) {
	const peer = "abcdef123"
	v := newTestView()
	d := NewDirectory(v)

	v.Add(models.CameraKey(peer), "s1", d.Name(peer))
	v.Add(models.ScreenKey(peer), "s2", view.ScreenLabel(d.Name(peer)))
	d.AddChat(peer, "", "hello")
	d.RaiseHand(peer)

	if got := d.Chat()[0].SenderName; got != "User abcde" {
		t.Fatalf("expected placeholder attribution, got %q", got)
	}

	d.UpdateName(peer, "Xavier")

	if got := d.Chat()[0].SenderName; got != "Xavier" {
		t.Errorf("chat attribution = %q, want Xavier", got)
	}
	if got := v.Label(models.CameraKey(peer)); got != "Xavier" {
		t.Errorf("tile label = %q, want Xavier", got)
	}
	if got := v.Label(models.ScreenKey(peer)); got != "Screen: Xavier" {
		t.Errorf("screen label = %q", got)
	}
	if got := d.Hands()[0].Text; got != "Xavier raised their hand" {
		t.Errorf("hand notice = %q", got)
	}
}

func TestUpdateName_Idempotent(t *testing.T) {
	d := NewDirectory(nil)
	d.UpdateName("p", "Pat")
	d.UpdateName("p", "Pat")
	d.UpdateName("p", "")

	if got := d.Name("p"); got != "Pat" {
		t.Errorf("name = %q, want Pat", got)
	}
}

func TestStatus_DefaultsOn(t *testing.T) {
	d := NewDirectory(nil)
	if s := d.Status("p"); !s.Audio || !s.Video {
		t.Errorf("expected default on/on, got %+v", s)
	}

	d.SetStatus("p", media.KindVideo, false)
	if s := d.Status("p"); !s.Audio || s.Video {
		t.Errorf("expected audio on, video off, got %+v", s)
	}

	d.Remove("p")
	if s := d.Status("p"); !s.Video {
		t.Error("expected status to reset after removal")
	}
}

func TestHands(t *testing.T) {
	d := NewDirectory(nil)
	d.RaiseHand("p")
	d.RaiseHand("p")
	if n := len(d.Hands()); n != 1 {
		t.Fatalf("expected one notice, got %d", n)
	}
	d.LowerHand("p")
	if n := len(d.Hands()); n != 0 {
		t.Errorf("expected no notices, got %d", n)
	}
}

func TestSync_Messages(t *testing.T) {
	s := &mockSender{}
	d := NewDirectory(nil)
	sync := NewSync(s, d)

	if err := sync.SendNameTo("bob"); err != nil || len(s.sent) != 0 {
		t.Fatalf("expected no targeted send before a name is known, sent=%d err=%v", len(s.sent), err)
	}

	if err := sync.BroadcastName("Alice"); err != nil {
		t.Fatalf("broadcast name: %v", err)
	}
	sync.SendNameTo("bob")
	sync.BroadcastStatus(media.KindAudio, false)
	sync.BroadcastStatus(media.KindVideo, true)
	sync.SendChat("hi")
	sync.SendReaction("👍")
	sync.RaiseHand()
	sync.LowerHand()

	want := []models.SignalType{
		models.SignalTypeNameUpdate,
		models.SignalTypeNameUpdate,
		models.SignalTypeMicStatus,
		models.SignalTypeVideoStatus,
		models.SignalTypeChat,
		models.SignalTypeReaction,
		models.SignalTypeRaiseHand,
		models.SignalTypeLowerHand,
	}
	if len(s.sent) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(s.sent))
	}
	for i, typ := range want {
		if s.sent[i].Type != typ {
			t.Errorf("message %d: got %s, want %s", i, s.sent[i].Type, typ)
		}
	}

	if s.sent[0].To != "" || s.sent[1].To != "bob" {
		t.Error("expected broadcast then targeted name")
	}
	if s.sent[2].IsOn == nil || *s.sent[2].IsOn {
		t.Error("expected mic off")
	}
	if s.sent[4].SenderName != "Alice" {
		t.Errorf("chat sender = %q", s.sent[4].SenderName)
	}
	if d.Status(models.LocalPeer).Audio {
		t.Error("expected local audio status off")
	}
	if len(d.Chat()) != 1 || len(d.Hands()) != 0 {
		t.Error("unexpected local chat or hand state")
	}
}

package conference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/transport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// mockSignaler records what the manager sends to the relay.
type mockSignaler struct {
	mu     sync.Mutex
	sent   []models.SignalMessage
	closed bool
}

func (s *mockSignaler) Send(msg models.SignalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *mockSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSignaler) ofType(t models.SignalType) []models.SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SignalMessage
	for _, msg := range s.sent {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

var errSignalingState = errors.New("wrong signaling state")

// mockTransport stands in for a peer connection. It tracks whether a local
// offer is outstanding and rejects descriptions that do not fit.
type mockTransport struct {
	key        models.SessionKey
	ev         transport.Events
	senders    map[media.Kind]media.Track
	receiving  map[media.Kind]bool
	offers     int
	answers    int
	rollbacks  int
	localOffer bool
	remoteSet  bool
	candidates []json.RawMessage
	closed     bool
	replaceErr error
}

func (t *mockTransport) AddTrack(tr media.Track) error {
	t.senders[tr.Kind()] = tr
	return nil
}

func (t *mockTransport) ReplaceTrack(kind media.Kind, tr media.Track) error {
	if t.replaceErr != nil {
		return t.replaceErr
	}
	if _, ok := t.senders[kind]; !ok {
		return transport.ErrNoSender
	}
	t.senders[kind] = tr
	return nil
}

func (t *mockTransport) RemoveTrack(kind media.Kind) error {
	delete(t.senders, kind)
	return nil
}

func (t *mockTransport) Outbound(kind media.Kind) media.Track {
	return t.senders[kind]
}

func (t *mockTransport) Receive(kind media.Kind) error {
	t.receiving[kind] = true
	return nil
}

func (t *mockTransport) CreateOffer() (json.RawMessage, error) {
	t.offers++
	t.localOffer = true
	return json.RawMessage(fmt.Sprintf(`{"type":"offer","sdp":"%s-%d"}`, t.key, t.offers)), nil
}

func (t *mockTransport) Answer(offer json.RawMessage) (json.RawMessage, error) {
	if t.localOffer {
		return nil, errSignalingState
	}
	t.remoteSet = true
	t.answers++
	return json.RawMessage(`{"type":"answer","sdp":"a"}`), nil
}

func (t *mockTransport) SetAnswer(answer json.RawMessage) error {
	if !t.localOffer {
		return errSignalingState
	}
	t.localOffer = false
	t.remoteSet = true
	return nil
}

func (t *mockTransport) Rollback() error {
	if t.localOffer {
		t.localOffer = false
		t.rollbacks++
	}
	return nil
}

func (t *mockTransport) AddCandidate(c json.RawMessage) error {
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *mockTransport) Close() error {
	t.closed = true
	return nil
}

type mockFactory struct {
	mu      sync.Mutex
	created []*mockTransport
}

func (f *mockFactory) New(key models.SessionKey, ev transport.Events) (transport.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &mockTransport{
		key:       key,
		ev:        ev,
		senders:   make(map[media.Kind]media.Track),
		receiving: make(map[media.Kind]bool),
	}
	f.created = append(f.created, t)
	return t, nil
}

// forKey returns every transport created for key, oldest first.
func (f *mockFactory) forKey(key models.SessionKey) []*mockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*mockTransport
	for _, t := range f.created {
		if t.key == key {
			out = append(out, t)
		}
	}
	return out
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// mockDevice hands out plain tracks.
type mockDevice struct {
	mu         sync.Mutex
	denyAudio  bool
	denyVideo  bool
	denyScreen bool
	calls      int
	screens    []*media.Stream
	cameras    []*media.Stream

	// when set, DisplayMedia blocks until it is closed
	gate      chan struct{}
	capturing int
}

func (d *mockDevice) UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if (c.Audio && d.denyAudio) || (c.Video && d.denyVideo) {
		return nil, media.ErrDenied
	}
	s := media.NewStream(fmt.Sprintf("cam-%d", d.calls))
	if c.Audio {
		s.AddTrack(media.NewTrack(fmt.Sprintf("mic-%d", d.calls), media.KindAudio))
	}
	if c.Video {
		s.AddTrack(media.NewTrack(fmt.Sprintf("cam-%d", d.calls), media.KindVideo))
	}
	d.cameras = append(d.cameras, s)
	return s, nil
}

func (d *mockDevice) DisplayMedia(ctx context.Context) (*media.Stream, error) {
	d.mu.Lock()
	gate := d.gate
	d.capturing++
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denyScreen {
		return nil, media.ErrDenied
	}
	s := media.NewStream(fmt.Sprintf("screen-%d", len(d.screens)+1),
		media.NewTrack(fmt.Sprintf("screen-%d", len(d.screens)+1), media.KindVideo))
	d.screens = append(d.screens, s)
	return s, nil
}

func (d *mockDevice) set(fn func(d *mockDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

type harness struct {
	t       *testing.T
	m       *Manager
	sig     *mockSignaler
	factory *mockFactory
	device  *mockDevice

	// id and relayed are used when two harnesses talk to each other
	id      string
	relayed int

	mu      sync.Mutex
	notices []Notice
}

func newHarness(t *testing.T, device *mockDevice) *harness {
	t.Helper()
	if device == nil {
		device = &mockDevice{}
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{t: t, sig: &mockSignaler{}, factory: &mockFactory{}, device: device}
	h.m = NewManager(Options{
		Name:     "Me",
		Device:   device,
		Factory:  h.factory,
		Signaler: h.sig,
		Notifier: NotifierFunc(func(n Notice) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notices = append(h.notices, n)
		}),
		ReconcileInterval: time.Hour,
		Log:               log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.m.Run(ctx, nil)
	return h
}

// join starts the manager and acknowledges the join like the relay would.
func (h *harness) join(others int) {
	h.t.Helper()
	h.joinAs("self", others)
}

func (h *harness) joinAs(id string, others int) {
	h.t.Helper()
	h.id = id
	if err := h.m.Start(context.Background(), "room"); err != nil {
		h.t.Fatalf("start: %v", err)
	}
	h.deliver(models.SignalMessage{Type: models.SignalTypeRoomJoined, UserID: id, RoomID: "room", Count: others})
}

// relayTo hands everything from sent since the last call to the other
// harness, the way the relay would route it. It reports how many messages
// moved.
func (h *harness) relayTo(other *harness) int {
	h.sig.mu.Lock()
	pending := append([]models.SignalMessage(nil), h.sig.sent[h.relayed:]...)
	h.relayed = len(h.sig.sent)
	h.sig.mu.Unlock()

	moved := 0
	for _, msg := range pending {
		if msg.Type == models.SignalTypeJoinRoom || (msg.To != "" && msg.To != other.id) {
			continue
		}
		msg.From = h.id
		msg.RoomID = "room"
		other.m.Deliver(msg)
		moved++
	}
	other.flush()
	return moved
}

// exchange relays between two harnesses until both go quiet.
func exchange(t *testing.T, a, b *harness) {
	t.Helper()
	for i := 0; i < 20; i++ {
		if a.relayTo(b)+b.relayTo(a) == 0 {
			return
		}
	}
	t.Fatal("signaling did not settle")
}

// deliver hands msg to the loop and waits until it is handled.
func (h *harness) deliver(msgs ...models.SignalMessage) {
	for _, msg := range msgs {
		h.m.Deliver(msg)
	}
	h.flush()
}

func (h *harness) flush() {
	h.m.do(func() error { return nil })
}

// run executes fn on the loop.
func (h *harness) run(fn func()) {
	h.m.do(func() error {
		fn()
		return nil
	})
}

func (h *harness) noticeCount(sev Severity) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, notice := range h.notices {
		if notice.Severity == sev {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or a second has passed.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}

func connected(peer string) models.SignalMessage {
	return models.SignalMessage{Type: models.SignalTypeUserConnected, From: peer, UserID: peer}
}

func disconnected(peer string) models.SignalMessage {
	return models.SignalMessage{Type: models.SignalTypeUserLeft, From: peer, UserID: peer}
}

func answerFrom(peer string, screen bool) models.SignalMessage {
	return models.SignalMessage{
		Type:          models.SignalTypeAnswer,
		From:          peer,
		To:            "self",
		Payload:       json.RawMessage(`{"type":"answer","sdp":"x"}`),
		IsScreenShare: screen,
	}
}

func offerFrom(peer string, screen bool) models.SignalMessage {
	return models.SignalMessage{
		Type:          models.SignalTypeOffer,
		From:          peer,
		To:            "self",
		Payload:       json.RawMessage(`{"type":"offer","sdp":"x"}`),
		IsScreenShare: screen,
	}
}

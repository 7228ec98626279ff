// Package conference runs the client side of a meeting: one transport
// session per (participant, plane), driven by relay events on a single
// event loop. Views and presence are projections of that state.
package conference

import (
	"context"
	"sort"
	"time"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/presence"
	"github.com/mossy-p/meet-signaling/internal/transport"
	"github.com/mossy-p/meet-signaling/internal/view"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrLeft is returned by every operation after Leave.
	ErrLeft            = errors.New("left the room")
	ErrAlreadyJoined   = errors.New("already joined a room")
	ErrAlreadySharing  = errors.New("screen sharing already active")
	ErrCameraRecovery  = errors.New("could not restore camera")
	errSignalingClosed = errors.New("signaling connection closed")
)

const taskQueueSize = 256

// Signaler is the relay connection.
type Signaler interface {
	presence.Sender
	Close() error
}

type Options struct {
	Name              string
	Device            media.Device
	Factory           transport.Factory
	Signaler          Signaler
	Notifier          Notifier
	ReconcileInterval time.Duration
	Log               logrus.FieldLogger
}

// Manager owns every session of one meeting. All state below is touched
// only from the Run loop; public methods hand work to it.
type Manager struct {
	device   media.Device
	factory  transport.Factory
	signaler Signaler
	notifier Notifier
	log      logrus.FieldLogger

	view     *view.Coordinator
	presence *presence.Directory
	sync     *presence.Sync

	handlers  map[models.SignalType]func(models.SignalMessage)
	tasks     chan func()
	stopped   chan struct{}
	reconcile time.Duration

	name         string
	room         string
	selfID       string
	sessions     map[models.SessionKey]*session
	participants map[string]struct{}
	countHint    int

	camera      *media.Stream
	cameraVideo media.Track
	videoOn     bool
	audioOn     bool
	screen      *media.Stream
	left        bool
}

func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	interval := opts.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	v := view.NewCoordinator(log)
	dir := presence.NewDirectory(v)

	m := &Manager{
		device:       opts.Device,
		factory:      opts.Factory,
		signaler:     opts.Signaler,
		notifier:     notifier,
		log:          log.WithField("component", "conference"),
		view:         v,
		presence:     dir,
		sync:         presence.NewSync(opts.Signaler, dir),
		tasks:        make(chan func(), taskQueueSize),
		stopped:      make(chan struct{}),
		reconcile:    interval,
		name:         opts.Name,
		sessions:     make(map[models.SessionKey]*session),
		participants: make(map[string]struct{}),
		videoOn:      true,
		audioOn:      true,
	}
	m.handlers = map[models.SignalType]func(models.SignalMessage){
		models.SignalTypeRoomJoined:    m.onRoomJoined,
		models.SignalTypeUserConnected: m.onUserConnected,
		models.SignalTypeUserLeft:      m.onUserLeft,
		models.SignalTypeOffer:         m.onOffer,
		models.SignalTypeAnswer:        m.onAnswer,
		models.SignalTypeCandidate:     m.onCandidate,
		models.SignalTypeNameUpdate:    m.onNameUpdate,
		models.SignalTypeChat:          m.onChat,
		models.SignalTypeMicStatus:     m.onStatus,
		models.SignalTypeVideoStatus:   m.onStatus,
		models.SignalTypeReaction:      m.onReaction,
		models.SignalTypeRaiseHand:     m.onRaiseHand,
		models.SignalTypeLowerHand:     m.onLowerHand,
		models.SignalTypeScreenStopped: m.onScreenStopped,
		models.SignalTypePeerCount:     m.onPeerCount,
		models.SignalTypeError:         m.onError,
	}
	return m
}

// Run is the event loop and must be running for any other method to
// return. It returns nil after Leave, or an error when ctx is cancelled or
// inbound is closed.
func (m *Manager) Run(ctx context.Context, inbound <-chan models.SignalMessage) error {
	defer close(m.stopped)

	ticker := time.NewTicker(m.reconcile)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				m.notify(SeverityBlocking, "Lost connection to the meeting server", errSignalingClosed)
				return errSignalingClosed
			}
			m.handle(msg)
		case task := <-m.tasks:
			task()
		case <-ticker.C:
			m.reconcileView()
		}
		if m.left {
			return nil
		}
	}
}

// Deliver queues msg behind any pending work, as if it came from the relay.
func (m *Manager) Deliver(msg models.SignalMessage) {
	m.post(func() { m.handle(msg) })
}

func (m *Manager) handle(msg models.SignalMessage) {
	if m.left {
		return
	}
	h, ok := m.handlers[msg.Type]
	if !ok {
		m.log.Warnf("Unknown message type: %s", msg.Type)
		return
	}
	h(msg)
}

// post queues fn without waiting for it.
func (m *Manager) post(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.stopped:
	}
}

// do runs fn on the loop and waits for its result.
func (m *Manager) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case m.tasks <- func() {
		if m.left {
			res <- ErrLeft
			return
		}
		res <- fn()
	}:
	case <-m.stopped:
		return ErrLeft
	}

	select {
	case err := <-res:
		return err
	case <-m.stopped:
		select {
		case err := <-res:
			return err
		default:
			return ErrLeft
		}
	}
}

func (m *Manager) send(msg models.SignalMessage) {
	if err := m.signaler.Send(msg); err != nil {
		m.log.WithField("type", msg.Type).Warnf("send: %v", err)
	}
}

func (m *Manager) notify(sev Severity, message string, err error) {
	m.notifier.Notify(Notice{Severity: sev, Message: message, Err: err})
}

// Start acquires local media and joins roomID. Media access degrades from
// camera and mic to either one alone, and finally to receive-only.
func (m *Manager) Start(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}
	stream := m.acquireLocal(ctx)

	err := m.do(func() error {
		if m.room != "" {
			if stream != nil {
				stream.Stop()
			}
			return ErrAlreadyJoined
		}
		m.room = roomID
		if stream == nil {
			stream = media.NewStream("camera-local")
		}
		m.camera = stream
		m.cameraVideo = stream.Track(media.KindVideo)
		m.videoOn = m.cameraVideo != nil
		m.audioOn = stream.Track(media.KindAudio) != nil
		m.view.Add(models.CameraKey(models.LocalPeer), stream.ID, m.localLabel())

		m.send(models.SignalMessage{Type: models.SignalTypeJoinRoom, RoomID: roomID})
		m.log.WithField("room", roomID).Info("Joining room")
		return nil
	})
	if errors.Is(err, ErrLeft) && stream != nil {
		stream.Stop()
	}
	return err
}

func (m *Manager) acquireLocal(ctx context.Context) *media.Stream {
	attempts := []struct {
		c      media.Constraints
		notice string
	}{
		{media.Constraints{Audio: true, Video: true}, ""},
		{media.Constraints{Audio: true}, "Camera unavailable, joining with audio only"},
		{media.Constraints{Video: true}, "Microphone unavailable, joining with video only"},
	}

	var lastErr error
	for _, a := range attempts {
		stream, err := m.device.UserMedia(ctx, a.c)
		if err != nil {
			m.log.Debugf("media %+v: %v", a.c, err)
			lastErr = err
			continue
		}
		if a.notice != "" {
			m.notify(SeverityWarning, a.notice, lastErr)
		}
		return stream
	}

	m.notify(SeverityBlocking, "Could not access camera or microphone, joining without media", lastErr)
	return nil
}

func (m *Manager) localLabel() string {
	if m.name != "" {
		return m.name
	}
	return "You"
}

// Leave stops local media, closes every session and the relay connection.
func (m *Manager) Leave() error {
	err := m.do(func() error {
		m.left = true
		if m.camera != nil {
			m.camera.Stop()
		}
		if m.screen != nil {
			m.screen.Stop()
		}
		for _, s := range m.sessions {
			m.closeSession(s)
		}
		m.view.Reset()
		m.presence.Reset()
		m.participants = make(map[string]struct{})
		if err := m.signaler.Close(); err != nil {
			m.log.Warnf("close signaling: %v", err)
		}
		m.log.WithField("room", m.room).Info("Left room")
		return nil
	})
	if errors.Is(err, ErrLeft) {
		return nil
	}
	return err
}

// SetDisplayName announces a new local name.
func (m *Manager) SetDisplayName(name string) error {
	return m.do(func() error {
		m.name = name
		if m.selfID == "" {
			m.presence.UpdateName(models.LocalPeer, name)
			return nil
		}
		return m.sync.BroadcastName(name)
	})
}

func (m *Manager) SendChat(message string) error {
	return m.do(func() error { return m.sync.SendChat(message) })
}

func (m *Manager) SendReaction(emoji string) error {
	return m.do(func() error { return m.sync.SendReaction(emoji) })
}

func (m *Manager) RaiseHand() error {
	return m.do(func() error { return m.sync.RaiseHand() })
}

func (m *Manager) LowerHand() error {
	return m.do(func() error { return m.sync.LowerHand() })
}

// Sessions lists live sessions ordered by key.
func (m *Manager) Sessions() []SessionInfo {
	var out []SessionInfo
	m.do(func() error {
		for _, s := range m.sessions {
			out = append(out, SessionInfo{Key: s.key, State: s.state, RemoteStream: s.remoteStream})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Participants lists the remote participants currently known.
func (m *Manager) Participants() []string {
	var out []string
	m.do(func() error {
		for id := range m.participants {
			out = append(out, id)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// ParticipantCount includes the local user.
func (m *Manager) ParticipantCount() int {
	var n int
	m.do(func() error {
		n = m.count()
		return nil
	})
	return n
}

func (m *Manager) count() int {
	known := len(m.participants)
	if m.countHint > known {
		return m.countHint + 1
	}
	return known + 1
}

// SelfID is the relay-assigned id, empty until joined.
func (m *Manager) SelfID() string {
	var id string
	m.do(func() error {
		id = m.selfID
		return nil
	})
	return id
}

func (m *Manager) View() *view.Coordinator {
	return m.view
}

func (m *Manager) Presence() *presence.Directory {
	return m.presence
}

// reconcileView re-adds tiles for live inbound streams and unhides tiles
// that drifted out of the grid.
func (m *Manager) reconcileView() {
	if m.left {
		return
	}

	var live []models.SessionKey
	for key, s := range m.sessions {
		if !s.inbound {
			continue
		}
		if !m.view.Has(key) {
			m.log.WithField("session", key.String()).Warn("restoring missing tile")
			m.remoteStream(s, s.remoteStream)
		}
		live = append(live, key)
	}
	if m.camera != nil {
		live = append(live, models.CameraKey(models.LocalPeer))
	}
	if m.screen != nil {
		live = append(live, models.ScreenKey(models.LocalPeer))
	}
	m.view.Reconcile(live)
}

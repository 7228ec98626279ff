package transport

import (
	"encoding/json"
	"sync"

	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// localTrack is satisfied by media tracks that carry a pion track.
type localTrack interface {
	TrackLocal() webrtc.TrackLocal
}

// PionFactory builds pion peer connections sharing one API instance.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    logrus.FieldLogger
}

// NewPionFactory registers the default codecs plus NACK and RTCP report
// interceptors, and uses iceServers (STUN/TURN URLs) for every connection.
func NewPionFactory(iceServers []string, log logrus.FieldLogger) (*PionFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Wrap(err, "register codecs")
	}

	i := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, errors.Wrap(err, "create nack responder")
	}
	i.Add(responder)
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, errors.Wrap(err, "create nack generator")
	}
	i.Add(generator)
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, errors.Wrap(err, "configure rtcp reports")
	}

	var servers []webrtc.ICEServer
	if len(iceServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: iceServers})
	}

	return &PionFactory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)),
		config: webrtc.Configuration{ICEServers: servers},
		log:    log.WithField("component", "transport"),
	}, nil
}

func (f *PionFactory) New(key models.SessionKey, ev Events) (Transport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}

	t := &pionTransport{
		pc:        pc,
		senders:   make(map[media.Kind]*webrtc.RTPSender),
		outbound:  make(map[media.Kind]media.Track),
		receiving: make(map[media.Kind]bool),
		log:       f.log.WithField("session", key.String()),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnCandidate == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			t.log.Warnf("marshal candidate: %v", err)
			return
		}
		ev.OnCandidate(data)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := media.KindVideo
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			kind = media.KindAudio
		}
		t.log.Debugf("got %s track %s codec=%s", kind, track.ID(), track.Codec().MimeType)

		// Rendering is not our job; keep the receiver drained so
		// interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()

		if ev.OnTrack != nil {
			ev.OnTrack(track.StreamID(), kind)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.log.Debugf("peer connection state: %s", s)
		if ev.OnStateChange != nil {
			ev.OnStateChange(convertState(s))
		}
	})

	return t, nil
}

type pionTransport struct {
	pc  *webrtc.PeerConnection
	log logrus.FieldLogger

	mu        sync.Mutex
	senders   map[media.Kind]*webrtc.RTPSender
	outbound  map[media.Kind]media.Track
	receiving map[media.Kind]bool
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
}

func (t *pionTransport) AddTrack(tr media.Track) error {
	lt, ok := tr.(localTrack)
	if !ok {
		return ErrUnsupportedTrack
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	sender, err := t.pc.AddTrack(lt.TrackLocal())
	if err != nil {
		return errors.Wrapf(err, "add %s track", tr.Kind())
	}
	t.senders[tr.Kind()] = sender
	t.outbound[tr.Kind()] = tr

	// Read incoming RTCP so interceptors see receiver reports
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (t *pionTransport) ReplaceTrack(kind media.Kind, tr media.Track) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sender, ok := t.senders[kind]
	if !ok {
		return ErrNoSender
	}

	var next webrtc.TrackLocal
	if tr != nil {
		lt, ok := tr.(localTrack)
		if !ok {
			return ErrUnsupportedTrack
		}
		next = lt.TrackLocal()
	}
	if err := sender.ReplaceTrack(next); err != nil {
		return errors.Wrapf(err, "replace %s track", kind)
	}

	if tr == nil {
		delete(t.outbound, kind)
	} else {
		t.outbound[kind] = tr
	}
	return nil
}

func (t *pionTransport) RemoveTrack(kind media.Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sender, ok := t.senders[kind]
	if !ok {
		return ErrNoSender
	}
	if err := t.pc.RemoveTrack(sender); err != nil {
		return errors.Wrapf(err, "remove %s track", kind)
	}
	delete(t.senders, kind)
	delete(t.outbound, kind)
	return nil
}

// Receive adds a recvonly transceiver for kind. A later AddTrack of the
// same kind takes it over.
func (t *pionTransport) Receive(kind media.Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, ok := t.senders[kind]; ok || t.receiving[kind] {
		return nil
	}

	codec := webrtc.RTPCodecTypeVideo
	if kind == media.KindAudio {
		codec = webrtc.RTPCodecTypeAudio
	}
	_, err := t.pc.AddTransceiverFromKind(codec, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return errors.Wrapf(err, "add %s transceiver", kind)
	}
	t.receiving[kind] = true
	return nil
}

func (t *pionTransport) Outbound(kind media.Kind) media.Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outbound[kind]
}

func (t *pionTransport) CreateOffer() (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create offer")
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, errors.Wrap(err, "set local description")
	}
	return json.Marshal(offer)
}

func (t *pionTransport) Answer(raw json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, errors.Wrap(err, "decode offer")
	}
	if err := t.setRemote(offer); err != nil {
		return nil, err
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create answer")
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, errors.Wrap(err, "set local description")
	}
	return json.Marshal(answer)
}

func (t *pionTransport) SetAnswer(raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return errors.Wrap(err, "decode answer")
	}
	return t.setRemote(answer)
}

func (t *pionTransport) Rollback() error {
	pending := t.pc.PendingLocalDescription()
	if pending == nil || pending.Type != webrtc.SDPTypeOffer {
		return nil
	}
	// pion parses the SDP of a rollback too, so hand it the offer back
	rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP}
	if err := t.pc.SetLocalDescription(rollback); err != nil {
		return errors.Wrap(err, "roll back local offer")
	}
	return nil
}

func (t *pionTransport) setRemote(desc webrtc.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return errors.Wrap(err, "set remote description")
	}

	t.mu.Lock()
	t.remoteSet = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, c := range pending {
		if err := t.pc.AddICECandidate(c); err != nil {
			t.log.Warnf("add buffered candidate: %v", err)
		}
	}
	return nil
}

func (t *pionTransport) AddCandidate(raw json.RawMessage) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return errors.Wrap(err, "decode candidate")
	}

	t.mu.Lock()
	if !t.remoteSet {
		t.pending = append(t.pending, c)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.pc.AddICECandidate(c); err != nil {
		return errors.Wrap(err, "add candidate")
	}
	return nil
}

func (t *pionTransport) pendingCandidates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *pionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.pc.Close()
}

func convertState(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

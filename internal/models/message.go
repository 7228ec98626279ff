package models

import "encoding/json"

// SignalType names a signaling event on the relay connection
type SignalType string

const (
	SignalTypeJoinRoom      SignalType = "join-room"
	SignalTypeRoomJoined    SignalType = "room-joined"
	SignalTypeUserConnected SignalType = "user-connected"
	SignalTypeUserLeft      SignalType = "user-disconnected"
	SignalTypeOffer         SignalType = "offer"
	SignalTypeAnswer        SignalType = "answer"
	SignalTypeCandidate     SignalType = "ice-candidate"
	SignalTypeChat          SignalType = "chat-message"
	SignalTypeMicStatus     SignalType = "mic-status-change"
	SignalTypeVideoStatus   SignalType = "video-status-change"
	SignalTypeReaction      SignalType = "reaction"
	SignalTypeRaiseHand     SignalType = "raise-hand"
	SignalTypeLowerHand     SignalType = "lower-hand"
	SignalTypeNameUpdate    SignalType = "name-update"
	SignalTypeScreenStopped SignalType = "screen-sharing-stopped"
	SignalTypePeerCount     SignalType = "peer-count"
	SignalTypeError         SignalType = "error"
)

// SignalMessage is the single envelope used for every event in both
// directions. The relay fills From and RoomID; Payload is never inspected.
type SignalMessage struct {
	Type          SignalType      `json:"type"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	RoomID        string          `json:"roomId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	IsScreenShare bool            `json:"isScreenShare,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	Name          string          `json:"name,omitempty"`
	Message       string          `json:"message,omitempty"`
	SenderName    string          `json:"senderName,omitempty"`
	Emoji         string          `json:"emoji,omitempty"`
	IsOn          *bool           `json:"isOn,omitempty"`
	Count         int             `json:"count,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Plane reports which media plane a relayed negotiation message belongs to.
func (m SignalMessage) Plane() Plane {
	if m.IsScreenShare {
		return PlaneScreen
	}
	return PlaneCamera
}

// Subject is the participant a message is about: the explicit userId when
// present (name replays), otherwise the sender.
func (m SignalMessage) Subject() string {
	if m.UserID != "" {
		return m.UserID
	}
	return m.From
}

// Bool returns a pointer for the optional IsOn field.
func Bool(v bool) *bool {
	return &v
}

// Plane is one of the two independent media transports per participant
type Plane string

const (
	PlaneCamera Plane = "camera"
	PlaneScreen Plane = "screen"
)

// LocalPeer is the participant id used for the local user's own tiles.
const LocalPeer = "local"

// SessionKey identifies one transport session (and its tile).
type SessionKey struct {
	PeerID string
	Plane  Plane
}

func (k SessionKey) String() string {
	return k.PeerID + "/" + string(k.Plane)
}

// CameraKey and ScreenKey build the two keys of a participant.
func CameraKey(peerID string) SessionKey { return SessionKey{PeerID: peerID, Plane: PlaneCamera} }
func ScreenKey(peerID string) SessionKey { return SessionKey{PeerID: peerID, Plane: PlaneScreen} }

// ShortID is the five character prefix used in placeholder names.
func ShortID(id string) string {
	if len(id) > 5 {
		return id[:5]
	}
	return id
}

// DefaultName is shown until a participant's real name arrives.
func DefaultName(id string) string {
	return "User " + ShortID(id)
}

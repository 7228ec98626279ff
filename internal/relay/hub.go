// Package relay brokers signaling between participants. It forwards
// negotiation blobs by recipient id and fans room events out to members,
// consulting the directory for names. Media never passes through here.
package relay

import (
	"encoding/json"
	"sync"

	"github.com/mossy-p/meet-signaling/internal/directory"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/sirupsen/logrus"
)

type handlerFunc func(c *Client, msg models.SignalMessage)

// Hub owns every live connection and the broadcast group of each room.
// Each inbound message is handled to completion under mu, so a join's
// snapshot replay and membership change can never interleave with
// another join.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*Client
	groups   map[string]map[string]*Client
	dir      *directory.Directory
	handlers map[models.SignalType]handlerFunc
	log      logrus.FieldLogger
}

func NewHub(dir *directory.Directory, log logrus.FieldLogger) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		dir:     dir,
		log:     log.WithField("component", "relay"),
	}
	h.handlers = map[models.SignalType]handlerFunc{
		models.SignalTypeOffer:         h.unicast,
		models.SignalTypeAnswer:        h.unicast,
		models.SignalTypeCandidate:     h.unicast,
		models.SignalTypePeerCount:     h.unicast,
		models.SignalTypeChat:          h.chat,
		models.SignalTypeNameUpdate:    h.nameUpdate,
		models.SignalTypeMicStatus:     h.route,
		models.SignalTypeVideoStatus:   h.route,
		models.SignalTypeReaction:      h.route,
		models.SignalTypeRaiseHand:     h.route,
		models.SignalTypeLowerHand:     h.route,
		models.SignalTypeScreenStopped: h.route,
	}
	return h
}

// Register makes c addressable by its id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	h.log.WithField("peer", c.ID).Info("Peer connected")
}

// Unregister removes c, tells its room it left and releases its name.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)

	if c.RoomID != "" {
		group := h.groups[c.RoomID]
		delete(group, c.ID)

		h.broadcast(c.RoomID, models.SignalMessage{
			Type:   models.SignalTypeUserLeft,
			From:   c.ID,
			UserID: c.ID,
			RoomID: c.RoomID,
		}, c.ID)
		h.dir.Leave(c.RoomID, c.ID)

		if len(group) == 0 {
			delete(h.groups, c.RoomID)
			h.log.WithField("room", c.RoomID).Info("Removed empty room")
		}
		h.log.WithFields(logrus.Fields{"peer": c.ID, "room": c.RoomID}).Info("Peer left room")
	}
	close(c.Send)
}

// Dispatch routes one inbound message from c.
func (h *Hub) Dispatch(c *Client, msg models.SignalMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	// Set the sender
	msg.From = c.ID

	if msg.Type == models.SignalTypeJoinRoom {
		h.joinRoom(c, msg.RoomID)
		return
	}
	if c.RoomID == "" {
		c.sendMessage(models.SignalMessage{Type: models.SignalTypeError, Error: "join a room first"})
		return
	}
	msg.RoomID = c.RoomID

	handler, ok := h.handlers[msg.Type]
	if !ok {
		h.log.Warnf("Unknown message type: %s", msg.Type)
		return
	}
	handler(c, msg)
}

// ParticipantCount returns the live member count of a room.
func (h *Hub) ParticipantCount(roomID string) int {
	return h.dir.Members(roomID)
}

func (h *Hub) joinRoom(c *Client, roomID string) {
	logger := h.log.WithFields(logrus.Fields{"peer": c.ID, "room": roomID})

	switch {
	case roomID == "":
		c.sendMessage(models.SignalMessage{Type: models.SignalTypeError, Error: "roomId is required"})
		return
	case c.RoomID == roomID:
		logger.Debug("Ignoring duplicate join")
		return
	case c.RoomID != "":
		c.sendMessage(models.SignalMessage{Type: models.SignalTypeError, Error: "already in room " + c.RoomID})
		return
	}

	group, ok := h.groups[roomID]
	if !ok {
		group = make(map[string]*Client)
		h.groups[roomID] = group
		logger.Info("Created new room")
	}
	c.RoomID = roomID
	h.dir.Join(roomID, c.ID)

	// Tell the joiner who it is and replay existing names to it alone,
	// before anyone else learns about the join.
	c.sendMessage(models.SignalMessage{
		Type:   models.SignalTypeRoomJoined,
		UserID: c.ID,
		RoomID: roomID,
		Count:  len(group),
	})
	snapshot := h.dir.Snapshot(roomID)
	for _, entry := range snapshot {
		c.sendMessage(models.SignalMessage{
			Type:   models.SignalTypeNameUpdate,
			From:   entry.UserID,
			UserID: entry.UserID,
			Name:   entry.Name,
			RoomID: roomID,
		})
	}
	if len(snapshot) > 0 {
		logger.Infof("Sent %d existing display names to new peer", len(snapshot))
	}

	group[c.ID] = c
	h.broadcast(roomID, models.SignalMessage{
		Type:   models.SignalTypeUserConnected,
		From:   c.ID,
		UserID: c.ID,
		RoomID: roomID,
	}, c.ID)

	logger.Infof("Peer joined room - %d participants", len(group))
}

func (h *Hub) chat(c *Client, msg models.SignalMessage) {
	if msg.SenderName == "" {
		msg.SenderName = models.DefaultName(c.ID)
	}
	h.route(c, msg)
}

func (h *Hub) nameUpdate(c *Client, msg models.SignalMessage) {
	h.dir.RecordName(c.RoomID, c.ID, msg.Name)
	msg.UserID = c.ID
	h.route(c, msg)
}

// route unicasts when the sender named a target and otherwise broadcasts
// to the rest of the sender's room.
func (h *Hub) route(c *Client, msg models.SignalMessage) {
	if msg.To != "" {
		h.unicast(c, msg)
		return
	}
	h.broadcast(c.RoomID, msg, c.ID)
}

// unicast is fire-and-forget: a vanished target is not an error, the
// sender learns about it from the user-disconnected broadcast. Targets
// outside the sender's room are treated as vanished.
func (h *Hub) unicast(c *Client, msg models.SignalMessage) {
	target, ok := h.clients[msg.To]
	if !ok || target.RoomID != c.RoomID {
		h.log.WithFields(logrus.Fields{"from": c.ID, "to": msg.To, "type": msg.Type}).Debug("Target peer not found")
		return
	}
	target.sendMessage(msg)
}

func (h *Hub) broadcast(roomID string, msg models.SignalMessage, excludePeerID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("Failed to marshal message: %v", err)
		return
	}

	for peerID, client := range h.groups[roomID] {
		if peerID != excludePeerID {
			client.sendRaw(data)
		}
	}
}

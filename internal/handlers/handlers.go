package handlers

import (
	"github.com/mossy-p/meet-signaling/internal/relay"
	"github.com/mossy-p/meet-signaling/internal/store"
	"github.com/sirupsen/logrus"
)

// Handlers bundles the HTTP endpoints with the relay hub and room store
// they share.
type Handlers struct {
	hub   *relay.Hub
	rooms store.RoomStore
	log   logrus.FieldLogger
}

func New(hub *relay.Hub, rooms store.RoomStore, log logrus.FieldLogger) *Handlers {
	return &Handlers{
		hub:   hub,
		rooms: rooms,
		log:   log.WithField("component", "http"),
	}
}

package handlers

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mossy-p/meet-signaling/internal/middleware"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/store"
	"github.com/pkg/errors"
)

const (
	roomCodeLength = 6
	codeChars      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// NewRoom redirects to a fresh, never used room id. Nothing is stored:
// the room comes into existence when the first participant joins it.
func (h *Handlers) NewRoom(c *gin.Context) {
	c.Redirect(http.StatusFound, "/room/"+uuid.New().String())
}

// CreateRoom registers a room with a shareable code (requires authentication)
func (h *Handlers) CreateRoom(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	room := models.RoomMetadata{
		ID:        uuid.New().String(),
		Code:      generateRoomCode(),
		CreatorID: userID,
		CreatedAt: time.Now(),
		Title:     req.Title,
	}

	if err := h.rooms.Save(c.Request.Context(), &room); err != nil {
		h.log.Errorf("Failed to store room: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	h.log.Infof("Room created: %s (code: %s) by user %s", room.ID, room.Code, userID)

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		RoomID: room.ID,
		Code:   room.Code,
	})
}

// GetRoom returns room information by code or ID (public). Rooms that were
// never registered but have live participants are reported too.
func (h *Handlers) GetRoom(c *gin.Context) {
	identifier := c.Param("roomId")

	room, err := h.rooms.Resolve(c.Request.Context(), identifier)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if h.hub.ParticipantCount(identifier) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		room = &models.RoomMetadata{ID: identifier}
	case err != nil:
		h.log.Errorf("Failed to load room %s: %v", identifier, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
		return
	}

	room.ParticipantCount = h.hub.ParticipantCount(room.ID)
	c.JSON(http.StatusOK, room)
}

// DeleteRoom forgets a registered room (requires authentication and creator).
// Participants already inside keep talking; the room only loses its code.
func (h *Handlers) DeleteRoom(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	room, err := h.rooms.Resolve(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	if room.CreatorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), room); err != nil {
		h.log.Errorf("Failed to delete room %s: %v", room.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	h.log.Infof("Room deleted: %s by user %s", room.ID, userID)

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

// generateRoomCode generates a random room code
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

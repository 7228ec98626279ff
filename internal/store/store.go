// Package store persists room metadata created through the HTTP API.
// Live membership is never stored here; it lives in the relay.
package store

import (
	"context"

	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when neither an id nor a code matches.
var ErrNotFound = errors.New("room not found")

// RoomStore keeps room metadata addressable by id and by short code.
type RoomStore interface {
	Save(ctx context.Context, room *models.RoomMetadata) error
	Resolve(ctx context.Context, identifier string) (*models.RoomMetadata, error)
	Delete(ctx context.Context, room *models.RoomMetadata) error
	Close() error
}

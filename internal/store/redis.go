package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossy-p/meet-signaling/config"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	roomTTL        = 24 * time.Hour
	roomCodeLength = 6
)

// RedisStore keeps room metadata under room:<id> and a code:<code> index,
// both expiring after a day.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the configured Redis instance.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Save(ctx context.Context, room *models.RoomMetadata) error {
	roomData, err := json.Marshal(room)
	if err != nil {
		return errors.Wrap(err, "marshal room")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, roomKey(room.ID), roomData, roomTTL)
	// Store code-to-ID mapping for easy lookup
	pipe.Set(ctx, codeKey(room.Code), room.ID, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "store room")
	}
	return nil
}

func (s *RedisStore) Resolve(ctx context.Context, identifier string) (*models.RoomMetadata, error) {
	roomID := identifier

	if isRoomCode(identifier) {
		id, err := s.client.Get(ctx, codeKey(identifier)).Result()
		switch {
		case err == nil:
			roomID = id
		case !errors.Is(err, redis.Nil):
			return nil, errors.Wrap(err, "lookup room code")
		}
	}

	roomData, err := s.client.Get(ctx, roomKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load room")
	}

	var room models.RoomMetadata
	if err := json.Unmarshal([]byte(roomData), &room); err != nil {
		return nil, errors.Wrap(err, "failed to parse room data")
	}
	return &room, nil
}

func (s *RedisStore) Delete(ctx context.Context, room *models.RoomMetadata) error {
	if err := s.client.Del(ctx, roomKey(room.ID), codeKey(room.Code)).Err(); err != nil {
		return errors.Wrap(err, "delete room")
	}
	return nil
}

func roomKey(id string) string   { return "room:" + id }
func codeKey(code string) string { return "code:" + code }

// Codes are short; anything else is treated as an id
func isRoomCode(identifier string) bool {
	return len(identifier) == roomCodeLength
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

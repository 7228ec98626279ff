package main

import (
	"context"

	"github.com/mossy-p/meet-signaling/config"
	"github.com/mossy-p/meet-signaling/internal/directory"
	"github.com/mossy-p/meet-signaling/internal/handlers"
	"github.com/mossy-p/meet-signaling/internal/relay"
	"github.com/mossy-p/meet-signaling/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Room metadata store: Redis when configured, memory otherwise
	var rooms store.RoomStore = store.NewMemoryStore()
	if cfg.Redis.Enabled() {
		rs, err := store.NewRedisStore(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		rooms = rs
		log.Info("Redis connection established")
	}
	defer rooms.Close()

	hub := relay.NewHub(directory.New(), log)
	router := handlers.NewRouter(cfg, handlers.New(hub, rooms, log))

	log.Infof("Starting signaling server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

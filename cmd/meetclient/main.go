// Command meetclient joins a room as a headless participant. It negotiates
// real peer connections with every other member and logs what it sees.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/mossy-p/meet-signaling/config"
	"github.com/mossy-p/meet-signaling/internal/conference"
	"github.com/mossy-p/meet-signaling/internal/media"
	"github.com/mossy-p/meet-signaling/internal/signal"
	"github.com/mossy-p/meet-signaling/internal/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	cfg := config.Load()

	room := pflag.StringP("room", "r", "", "room id to join")
	name := pflag.StringP("name", "n", cfg.Client.DisplayName, "display name")
	url := pflag.String("url", cfg.Client.SignalURL, "relay websocket url")
	share := pflag.Bool("share-screen", false, "share a synthetic screen after joining")
	duration := pflag.Duration("duration", 0, "leave after this long (0 waits for a signal)")
	noVideo := pflag.Bool("no-video", false, "refuse camera access")
	pflag.Parse()

	if *room == "" {
		pflag.Usage()
		os.Exit(2)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	conn, err := signal.Dial(ctx, *url, log)
	if err != nil {
		log.Fatalf("Failed to connect to relay: %v", err)
	}

	factory, err := transport.NewPionFactory(cfg.Client.ICEServers, log)
	if err != nil {
		log.Fatalf("Failed to set up WebRTC: %v", err)
	}

	m := conference.NewManager(conference.Options{
		Name:     *name,
		Device:   &media.SyntheticDevice{DenyVideo: *noVideo},
		Factory:  factory,
		Signaler: conn,
		Notifier: conference.NotifierFunc(func(n conference.Notice) {
			entry := log.WithField("severity", n.Severity.String())
			if n.Err != nil {
				entry = entry.WithError(n.Err)
			}
			entry.Info(n.Message)
		}),
		ReconcileInterval: cfg.Client.ReconcileInterval,
		Log:               log,
	})

	done := make(chan error, 1)
	// The loop outlives ctx so Leave can still close everything.
	go func() { done <- m.Run(context.Background(), conn.Messages()) }()

	if err := m.Start(ctx, *room); err != nil {
		log.Fatalf("Failed to join room: %v", err)
	}
	if *share {
		if err := m.StartScreenShare(ctx); err != nil {
			log.Warnf("Screen sharing failed: %v", err)
		}
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				log.Fatalf("Meeting ended: %v", err)
			}
			return
		case <-ctx.Done():
			log.Info("Leaving room")
			if err := m.Leave(); err != nil {
				log.Warnf("Leave: %v", err)
			}
			<-done
			return
		case <-ticker.C:
			layout := m.View().Layout()
			log.WithFields(logrus.Fields{
				"participants": m.ParticipantCount(),
				"sessions":     len(m.Sessions()),
				"grid":         layout,
			}).Info("Status")
		}
	}
}

package signal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/meet-signaling/internal/directory"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/mossy-p/meet-signaling/internal/relay"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRelayServer(t *testing.T) string {
	t.Helper()
	hub := relay.NewHub(directory.New(), quietLogger())
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := relay.NewClient(ws, quietLogger())
		hub.Register(c)
		go c.WritePump()
		go c.ReadPump(hub)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, url, quietLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func next(t *testing.T, c *Conn, want models.SignalType) models.SignalMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				t.Fatalf("connection closed waiting for %s", want)
			}
			if msg.Type == want {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestConn_RoundTripThroughRelay(t *testing.T) {
	url := newRelayServer(t)
	alice, bob := dial(t, url), dial(t, url)

	if err := alice.Send(models.SignalMessage{Type: models.SignalTypeJoinRoom, RoomID: "r"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	aliceID := next(t, alice, models.SignalTypeRoomJoined).UserID

	bob.Send(models.SignalMessage{Type: models.SignalTypeJoinRoom, RoomID: "r"})
	bobID := next(t, bob, models.SignalTypeRoomJoined).UserID

	joined := next(t, alice, models.SignalTypeUserConnected)
	if joined.UserID != bobID {
		t.Errorf("expected user-connected for %s, got %s", bobID, joined.UserID)
	}

	alice.Send(models.SignalMessage{Type: models.SignalTypeChat, Message: "hi"})
	chat := next(t, bob, models.SignalTypeChat)
	if chat.From != aliceID || chat.Message != "hi" || chat.SenderName != models.DefaultName(aliceID) {
		t.Errorf("unexpected chat %+v", chat)
	}

	alice.Close()
	left := next(t, bob, models.SignalTypeUserLeft)
	if left.UserID != aliceID {
		t.Errorf("expected %s to leave, got %s", aliceID, left.UserID)
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	c := dial(t, newRelayServer(t))
	c.Close()
	c.Close()

	if err := c.Send(models.SignalMessage{Type: models.SignalTypeChat}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	select {
	case _, ok := <-c.Messages():
		if ok {
			// drain anything that raced in before close
			for range c.Messages() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected messages channel to close")
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/ws", quietLogger()); err == nil {
		t.Error("expected dial error")
	}
}

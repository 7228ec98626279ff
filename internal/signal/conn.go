// Package signal is the client end of the relay websocket.
package signal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var (
	ErrClosed     = errors.New("signaling connection closed")
	ErrBufferFull = errors.New("signaling send buffer full")
)

// Conn is a relay connection. Inbound messages arrive on Messages, which
// is closed when the connection ends.
type Conn struct {
	ws       *websocket.Conn
	send     chan []byte
	messages chan models.SignalMessage
	done     chan struct{}
	once     sync.Once
	log      logrus.FieldLogger
}

// Dial connects to the relay at url (ws:// or wss://).
func Dial(ctx context.Context, url string, log logrus.FieldLogger) (*Conn, error) {
	log = log.WithField("component", "signal")
	log.Infof("Connecting to %s", url)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial")
	}

	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		messages: make(chan models.SignalMessage, sendBuffer),
		done:     make(chan struct{}),
		log:      log,
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

func (c *Conn) Messages() <-chan models.SignalMessage {
	return c.messages
}

// Send queues msg for the relay without blocking.
func (c *Conn) Send(msg models.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close ends the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.messages)
		c.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Warnf("read error: %v", err)
				}
			}
			return
		}

		var msg models.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warnf("unmarshal error: %v", err)
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warnf("write error: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Warnf("ping error: %v", err)
				c.Close()
				return
			}
		}
	}
}

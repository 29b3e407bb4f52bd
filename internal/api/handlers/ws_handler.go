package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256

	msgTooLarge = "message too large"
)

var errConnClosed = errors.New("connection closed")

type WSHandler struct {
	relay      *relay.Relay
	log        *logrus.Logger
	maxMessage int64
	upgrader   websocket.Upgrader
}

func NewWSHandler(r *relay.Relay, log *logrus.Logger, maxMessageBytes int64) *WSHandler {
	if maxMessageBytes <= 0 {
		maxMessageBytes = 4 << 20
	}
	return &WSHandler{
		relay:      r,
		log:        log,
		maxMessage: maxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn queues outbound events for a single writer goroutine.
type wsConn struct {
	c    *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c, send: make(chan []byte, sendBuffer)}
}

// Emit never blocks; a client that cannot keep up is disconnected.
func (w *wsConn) Emit(ev relay.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return errConnClosed
	}
	select {
	case w.send <- b:
		w.mu.RUnlock()
		return nil
	default:
		w.mu.RUnlock()
		w.Close()
		return errors.New("outbound queue full")
	}
}

func (w *wsConn) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.send)
	}
}

func (w *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.c.Close()
	}()

	for {
		select {
		case msg, ok := <-w.send:
			_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = w.c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Relay upgrades the request and pumps frames between the socket and the relay.
func (h *WSHandler) Relay(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}

	out := newWSConn(conn)
	rc := h.relay.NewConn(out)
	log := h.log.WithFields(logrus.Fields{"conn_id": rc.ID, "ip": c.ClientIP()})
	log.Info("relay connection opened")

	go out.writePump()
	defer func() {
		rc.Close()
		out.Close()
		log.Info("relay connection closed")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	for {
		data, rerr := h.readFrame(conn)
		if errors.Is(rerr, errFrameTooLarge) {
			log.WithField("limit", h.maxMessage).Warn("oversized frame dropped")
			_ = out.Emit(relay.Event{Type: relay.TypeError, Message: msgTooLarge})
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}
		if rerr != nil {
			if websocket.IsUnexpectedCloseError(rerr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(rerr).Warn("relay read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if herr := rc.Handle(ctx, data); herr != nil {
			log.WithError(herr).Error("closing connection after internal fault")
			return
		}
	}
}

var errFrameTooLarge = errors.New("frame too large")

// readFrame reads one message. A message over the limit is drained and reported
// as errFrameTooLarge so the connection stays usable.
func (h *WSHandler) readFrame(conn *websocket.Conn) ([]byte, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, h.maxMessage+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxMessage {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, errFrameTooLarge
	}
	return data, nil
}

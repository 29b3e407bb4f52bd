package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Sabeehq11/CMI/internal/utils"
)

const (
	msgSessionNotFound = "Session not found"
	msgBadMessage      = "Failed to process message"
	msgUnknownType     = "unknown message type"
	msgRateLimited     = "rate limited"
	msgBadAudio        = "invalid audio payload"
)

// Conn handles the inbound frames of one client connection.
type Conn struct {
	ID string

	relay   *Relay
	out     Emitter
	limiter *rate.Limiter
	log     *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func newConn(r *Relay, out Emitter) *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:       id,
		relay:    r,
		out:      out,
		log:      r.log.WithField("conn_id", id),
		sessions: make(map[string]*Session),
	}
}

// Handle processes one inbound frame. A non-nil error means the connection must be closed.
func (c *Conn) Handle(ctx context.Context, frame []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.WithField("panic", rec).WithField("stack", string(debug.Stack())).Error("panic while handling frame")
			err = fmt.Errorf("conn %s: panic: %v", c.ID, rec)
		}
	}()

	if c.limiter != nil && !c.limiter.Allow() {
		c.send(errorEvent(msgRateLimited))
		return nil
	}

	var msg Inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.log.WithError(err).Debug("malformed frame")
		c.send(errorEvent(msgBadMessage))
		return nil
	}

	switch msg.Type {
	case TypeJoinSession:
		c.join(ctx, msg)
	case TypeAudioChunk:
		c.audioChunk(msg)
	case TypeAudioEnd:
		c.audioEnd(msg)
	case TypePing:
		c.send(Event{Type: TypePong})
	default:
		c.log.WithField("type", msg.Type).Debug("unknown message type")
		c.send(Event{Type: TypeError, SessionID: msg.SessionID, Message: msgUnknownType})
	}
	return nil
}

// Close releases every session this connection joined. In-flight turns still finish.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = nil
	c.mu.Unlock()

	for _, s := range sessions {
		c.relay.registry.Release(s)
	}
	c.log.WithField("sessions", len(sessions)).Debug("connection closed")
}

func (c *Conn) join(ctx context.Context, msg Inbound) {
	var info JoinInfo
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		if err := json.Unmarshal(msg.Data, &info); err != nil {
			c.send(Event{Type: TypeError, SessionID: msg.SessionID, Message: msgBadMessage})
			return
		}
	}

	s, err := c.relay.registry.Join(ctx, msg.SessionID, info, c.out)
	if err != nil {
		c.log.WithError(err).WithField("session_id", msg.SessionID).Warn("join failed")
		c.send(Event{Type: TypeError, SessionID: msg.SessionID, Message: utils.PublicMessage(err, "Failed to join session")})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.relay.registry.Release(s)
		return
	}
	if prev, ok := c.sessions[s.ID]; ok && prev != s {
		c.relay.registry.Release(prev)
	}
	c.sessions[s.ID] = s
	c.mu.Unlock()

	rubric := s.Rubric
	ev := Event{Type: TypeSessionJoined, SessionID: s.ID, Language: s.Language, Rubric: &rubric}
	if s.Demo {
		ev.Data = map[string]any{"demo": true}
	}
	s.emit(ev)
}

func (c *Conn) audioChunk(msg Inbound) {
	s, ok := c.session(msg.SessionID)
	if !ok {
		c.send(Event{Type: TypeError, SessionID: msg.SessionID, Message: msgSessionNotFound})
		return
	}

	var data audioChunkData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.emit(errorEvent(msgBadAudio))
			return
		}
	}
	audio, err := DecodeAudio(data.Audio)
	if err != nil {
		s.emit(errorEvent(msgBadAudio))
		return
	}

	s.buffer.Append(audio)
	s.emit(processingEvent(msgListening))
	s.silence.Touch()
}

func (c *Conn) audioEnd(msg Inbound) {
	s, ok := c.session(msg.SessionID)
	if !ok {
		c.send(Event{Type: TypeError, SessionID: msg.SessionID, Message: msgSessionNotFound})
		return
	}
	s.silence.Trigger()
}

// session returns the live session this connection joined under id.
// Ids joined by other connections, or taken over by a later join, are not found.
func (c *Conn) session(id string) (*Session, bool) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	cur, ok := c.relay.registry.Get(id)
	if !ok || cur != s {
		return nil, false
	}
	return s, true
}

func (c *Conn) send(ev Event) {
	if c.out == nil {
		return
	}
	if err := c.out.Emit(ev); err != nil {
		c.log.WithError(err).WithField("event", ev.Type).Debug("send failed")
	}
}

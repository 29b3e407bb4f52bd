package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Sabeehq11/CMI/internal/models"
)

// inbound
const (
	TypeJoinSession = "join_session"
	TypeAudioChunk  = "audio_chunk"
	TypeAudioEnd    = "audio_end"
	TypePing        = "ping"
)

// outbound
const (
	TypeSessionJoined = "session_joined"
	TypeTranscription = "transcription"
	TypeAIResponse    = "ai_response"
	TypeAIAudio       = "ai_audio"
	TypeProcessing    = "processing"
	TypeReady         = "ready"
	TypeError         = "error"
	TypePong          = "pong"
)

type Inbound struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// JoinInfo is the optional data of join_session. Only demo sessions use it.
type JoinInfo struct {
	Language    string         `json:"language,omitempty"`
	StudentName string         `json:"studentName,omitempty"`
	StudentID   string         `json:"studentId,omitempty"`
	Rubric      *models.Rubric `json:"rubric,omitempty"`
}

type audioChunkData struct {
	Audio string `json:"audio"`
}

// Event is every outbound frame; unused fields are omitted on the wire.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Language  string         `json:"language,omitempty"`
	Rubric    *models.Rubric `json:"rubric,omitempty"`
	Text      string         `json:"text,omitempty"`
	Speaker   models.Speaker `json:"speaker,omitempty"`
	Audio     string         `json:"audio,omitempty"`
	Format    string         `json:"format,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Emitter receives the outbound events of one connection.
type Emitter interface {
	Emit(ev Event) error
}

type EmitterFunc func(ev Event) error

func (f EmitterFunc) Emit(ev Event) error { return f(ev) }

// Mirror gets a copy of every session event (live observers). Errors are ignored by the relay.
type Mirror interface {
	Publish(ctx context.Context, sessionID string, ev Event) error
}

var ErrInvalidAudio = errors.New("invalid base64 audio")

// DecodeAudio accepts plain base64 or a data URL ("data:audio/webm;base64,....").
func DecodeAudio(s string) ([]byte, error) {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "data:") {
		i := strings.Index(raw, ",")
		if i < 0 {
			return nil, ErrInvalidAudio
		}
		raw = raw[i+1:]
	}
	if raw == "" {
		return []byte{}, nil
	}

	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// MediaRecorder shims sometimes drop the padding
		if b2, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "=")); err2 == nil {
			return b2, nil
		}
		return nil, ErrInvalidAudio
	}
	return b, nil
}

func processingEvent(msg string) Event { return Event{Type: TypeProcessing, Message: msg} }

func errorEvent(msg string) Event { return Event{Type: TypeError, Message: msg} }

func readyEvent(msg string) Event { return Event{Type: TypeReady, Message: msg} }

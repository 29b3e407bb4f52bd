package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/Sabeehq11/CMI/internal/relay"
)

func EventChannel(sessionID string) string { return "session:" + sessionID + ":events" }

// RedisMirror publishes a copy of every session event to session:<id>:events.
// Synthesized audio is replaced by its size; observers never need the bytes.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

type mirroredEvent struct {
	relay.Event
	AudioBytes int `json:"audioBytes,omitempty"`
}

func (m *RedisMirror) Publish(ctx context.Context, sessionID string, ev relay.Event) error {
	b, err := json.Marshal(MirrorPayload(ev))
	if err != nil {
		return err
	}
	return m.rdb.Publish(ctx, EventChannel(sessionID), b).Err()
}

// MirrorPayload is the value published for ev.
func MirrorPayload(ev relay.Event) any {
	out := mirroredEvent{Event: ev}
	if ev.Audio != "" {
		out.AudioBytes = len(ev.Audio) * 3 / 4
		out.Audio = ""
	}
	return out
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Stage statuses recorded per turn.
const (
	StageDone     = "done"
	StageFailed   = "failed"
	StageSkipped  = "skipped"
	StageFallback = "fallback"
)

// TurnLog is one processed utterance, kept in MongoDB until ExpiresAt.
type TurnLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	TurnIndex int64              `bson:"turn_index" json:"turn_index"`
	Language  string             `bson:"language" json:"language"`
	Demo      bool               `bson:"demo" json:"demo"`

	AudioBytes int     `bson:"audio_bytes" json:"audio_bytes"`
	AudioPath  *string `bson:"audio_path,omitempty" json:"audio_path,omitempty"`

	StudentText   string  `bson:"student_text,omitempty" json:"student_text,omitempty"`
	STTStatus     string  `bson:"stt_status" json:"stt_status"`
	STTConfidence float64 `bson:"stt_confidence,omitempty" json:"stt_confidence,omitempty"`

	AIText    string `bson:"ai_text,omitempty" json:"ai_text,omitempty"`
	LLMStatus string `bson:"llm_status" json:"llm_status"`

	TTSStatus  string `bson:"tts_status" json:"tts_status"`
	TTSEngine  string `bson:"tts_engine,omitempty" json:"tts_engine,omitempty"`
	SpeechSize int    `bson:"speech_bytes,omitempty" json:"speech_bytes,omitempty"`

	Persisted        bool      `bson:"persisted" json:"persisted"`
	ProcessingTimeMS int64     `bson:"processing_time_ms" json:"processing_time_ms"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

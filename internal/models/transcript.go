package models

import "time"

type Speaker string

const (
	SpeakerStudent Speaker = "student"
	SpeakerAI      Speaker = "ai"
)

// TranscriptEntry is one line of the interview, stored as-is in oral_sessions.raw_transcript.
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

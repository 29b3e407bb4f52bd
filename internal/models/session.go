package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// OralSession is a row of oral_sessions with its student and rubric preloaded.
type OralSession struct {
	ID          string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StudentID   string     `gorm:"column:student_id;type:uuid;index" json:"student_id"`
	RubricID    string     `gorm:"column:rubric_id;type:uuid" json:"rubric_id"`
	StartedAt   time.Time  `gorm:"column:started_at;type:timestamptz" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`
	AudioURL    *string    `gorm:"column:audio_url;type:text" json:"audio_url,omitempty"`

	RawTranscript datatypes.JSON `gorm:"column:raw_transcript;type:jsonb" json:"raw_transcript"`

	Student Student      `gorm:"foreignKey:StudentID;references:ID" json:"student"`
	Rubric  RubricRecord `gorm:"foreignKey:RubricID;references:ID" json:"rubric"`
}

func (OralSession) TableName() string { return "oral_sessions" }

// Transcript decodes raw_transcript; a NULL or malformed column is an empty history.
func (s *OralSession) Transcript() []TranscriptEntry {
	if s == nil || len(s.RawTranscript) == 0 {
		return nil
	}
	var out []TranscriptEntry
	if err := json.Unmarshal(s.RawTranscript, &out); err != nil {
		return nil
	}
	return out
}

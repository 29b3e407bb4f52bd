package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Criterion struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"` // 0..1
	Description string  `json:"description"`
}

// Rubric is the wire/domain shape sent with session_joined and used in prompts.
type Rubric struct {
	Name     string      `json:"name"`
	Language string      `json:"language"`
	Criteria []Criterion `json:"criteria"`
}

// DefaultRubric is used for demo sessions when the client does not supply one.
func DefaultRubric(language string) Rubric {
	return Rubric{
		Name:     "Basic Conversation Assessment",
		Language: language,
		Criteria: []Criterion{
			{Name: "Accuracy", Weight: 0.3, Description: "Grammar and vocabulary correctness"},
			{Name: "Fluency", Weight: 0.3, Description: "Speech flow and natural expression"},
			{Name: "Content", Weight: 0.4, Description: "Relevance and coherence of responses"},
		},
	}
}

type RubricRecord struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"column:name;type:text" json:"name"`
	Language  string         `gorm:"column:language;type:text" json:"language"`
	Criteria  datatypes.JSON `gorm:"column:criteria;type:jsonb" json:"criteria"`
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (RubricRecord) TableName() string { return "rubrics" }

// Rubric decodes the jsonb criteria column. Rows with a broken criteria payload yield no criteria.
func (r RubricRecord) Rubric() Rubric {
	out := Rubric{Name: r.Name, Language: r.Language}
	if len(r.Criteria) > 0 {
		_ = json.Unmarshal(r.Criteria, &out.Criteria)
	}
	return out
}

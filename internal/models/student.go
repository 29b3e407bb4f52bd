package models

import "time"

type Student struct {
	ID             string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FirstName      string    `gorm:"column:first_name;type:text" json:"first_name"`
	TargetLanguage string    `gorm:"column:target_language;type:text" json:"target_language"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Student) TableName() string { return "students" }

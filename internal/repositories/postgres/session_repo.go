package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Sabeehq11/CMI/internal/models"
	"github.com/Sabeehq11/CMI/internal/utils"
)

type SessionRepository interface {
	GetWithRelations(ctx context.Context, id string) (*models.OralSession, error)
	UpdateTranscript(ctx context.Context, id string, transcript []models.TranscriptEntry) error
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

// validID rejects ids the uuid column would refuse with a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *sessionRepo) GetWithRelations(ctx context.Context, id string) (*models.OralSession, error) {
	if !validID(id) {
		return nil, utils.ErrNotFound
	}
	var row models.OralSession
	err := r.db.WithContext(ctx).
		Preload("Student").
		Preload("Rubric").
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateTranscript overwrites raw_transcript with the full conversation.
func (r *sessionRepo) UpdateTranscript(ctx context.Context, id string, transcript []models.TranscriptEntry) error {
	if !validID(id) {
		return utils.ErrNotFound
	}
	if transcript == nil {
		transcript = []models.TranscriptEntry{}
	}
	b, err := json.Marshal(transcript)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&models.OralSession{}).
		Where("id = ?", id).
		Update("raw_transcript", datatypes.JSON(b))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

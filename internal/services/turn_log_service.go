package services

import (
	"context"
	"time"

	"github.com/Sabeehq11/CMI/internal/models"
	mongorepo "github.com/Sabeehq11/CMI/internal/repositories/mongo"
	"github.com/Sabeehq11/CMI/internal/utils"
)

// TurnLogService records one report per processed utterance and lists them per session.
type TurnLogService interface {
	RecordTurn(ctx context.Context, t *models.TurnLog) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.TurnLog, error)
}

type turnLogService struct {
	turns mongorepo.TurnRepository
	ttl   time.Duration
	now   func() time.Time
}

func NewTurnLogService(turns mongorepo.TurnRepository, ttl time.Duration) TurnLogService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &turnLogService{turns: turns, ttl: ttl, now: time.Now}
}

func (s *turnLogService) RecordTurn(ctx context.Context, t *models.TurnLog) error {
	const op = "TurnLogService.RecordTurn"

	if t == nil || t.SessionID == "" || t.TurnIndex <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required and turn_index must be > 0", nil)
	}

	now := s.now().UTC()
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	t.ExpiresAt = now.Add(s.ttl)

	if err := s.turns.Insert(ctx, t); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert turn log", err)
	}
	return nil
}

func (s *turnLogService) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.TurnLog, error) {
	const op = "TurnLogService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.turns.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list turn logs", err)
	}
	if out == nil {
		out = []models.TurnLog{}
	}
	return out, nil
}

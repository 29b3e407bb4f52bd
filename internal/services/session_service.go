package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/cache"
	"github.com/Sabeehq11/CMI/internal/models"
	pgrepo "github.com/Sabeehq11/CMI/internal/repositories/postgres"
	"github.com/Sabeehq11/CMI/internal/utils"
)

// SessionService is the durable store behind the relay: it loads joined sessions and saves transcripts.
type SessionService interface {
	LoadSession(ctx context.Context, sessionID string) (*models.OralSession, error)
	SaveTranscript(ctx context.Context, sessionID string, transcript []models.TranscriptEntry) error
}

type sessionService struct {
	sessions pgrepo.SessionRepository
	cache    cache.Cache
	ttl      time.Duration
	log      *logrus.Logger
}

// NewSessionService builds the store. c may be nil to disable caching.
func NewSessionService(sessions pgrepo.SessionRepository, c cache.Cache, ttl time.Duration, log *logrus.Logger) SessionService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logrus.New()
	}
	return &sessionService{sessions: sessions, cache: c, ttl: ttl, log: log}
}

func sessionCacheKey(id string) string { return "oral_session:" + id }

func (s *sessionService) LoadSession(ctx context.Context, sessionID string) (*models.OralSession, error) {
	const op = "SessionService.LoadSession"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	if s.cache != nil {
		var cached models.OralSession
		hit, err := s.cache.GetJSON(ctx, sessionCacheKey(sessionID), &cached)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("session cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	out, err := s.sessions.GetWithRelations(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "Session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load session", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, sessionCacheKey(sessionID), out, s.ttl); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("session cache write failed")
		}
	}
	return out, nil
}

func (s *sessionService) SaveTranscript(ctx context.Context, sessionID string, transcript []models.TranscriptEntry) error {
	const op = "SessionService.SaveTranscript"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	if err := s.sessions.UpdateTranscript(ctx, sessionID, transcript); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "Session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to save transcript", err)
	}

	// a cached copy would resume a rejoin from a stale transcript
	if s.cache != nil {
		if err := s.cache.Del(ctx, sessionCacheKey(sessionID)); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("session cache invalidation failed")
		}
	}
	return nil
}

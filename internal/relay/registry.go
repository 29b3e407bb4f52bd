package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/models"
	"github.com/Sabeehq11/CMI/internal/utils"
)

const DemoPrefix = "demo-"

// Source loads a stored session with its student and rubric.
type Source interface {
	LoadSession(ctx context.Context, sessionID string) (*models.OralSession, error)
}

type RegistryConfig struct {
	// Source is nil in demo mode: every join builds an in-memory session.
	Source        Source
	SilenceWindow time.Duration
	Scheduler     Scheduler
	Mirror        Mirror
	MirrorTimeout time.Duration
	Logger        *logrus.Logger
	Now           func() time.Time
}

// Registry maps session ids to live sessions.
type Registry struct {
	cfg     RegistryConfig
	onFlush func(*Session)

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(cfg RegistryConfig, onFlush func(*Session)) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 2 * time.Second
	}
	return &Registry{cfg: cfg, onFlush: onFlush, sessions: make(map[string]*Session)}
}

// IsDemo reports whether sessionID gets an in-memory session.
func (r *Registry) IsDemo(sessionID string) bool {
	return r.cfg.Source == nil || strings.HasPrefix(sessionID, DemoPrefix)
}

// Join registers a session for em. Joining an id that is already live replaces the
// previous instance but keeps its transcript and any running turn, whose remaining
// events go to em.
func (r *Registry) Join(ctx context.Context, sessionID string, info JoinInfo, em Emitter) (*Session, error) {
	const op = "Registry.Join"

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "sessionId is required", nil)
	}

	live, _ := r.Get(sessionID)

	var s *Session
	switch {
	case live != nil:
		s = live.successor(r.cfg.Now())
	case r.IsDemo(sessionID):
		s = r.demoSession(sessionID, info)
	default:
		rec, err := r.cfg.Source.LoadSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) || utils.IsCode(err, utils.CodeNotFound) {
				return nil, utils.E(utils.CodeNotFound, op, "Session not found", err)
			}
			return nil, utils.E(utils.CodeInternal, op, "Failed to join session", err)
		}
		s = r.storedSession(rec, info)
	}

	s.log = r.cfg.Logger.WithFields(logrus.Fields{"session_id": s.ID, "demo": s.Demo})
	s.buffer = NewUtteranceBuffer()
	s.silence = NewSilenceDetector(r.cfg.SilenceWindow, r.cfg.Scheduler, func() {
		if r.onFlush != nil {
			r.onFlush(s)
		}
	})

	r.mu.Lock()
	prev := r.sessions[s.ID]
	if prev != nil {
		// a concurrent join got in first while the stored session was loading
		s.turnState = prev.turnState
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	s.setEmitter(r.mirrored(s.ID, em))
	if prev != nil {
		prev.close()
		s.log.Info("session re-joined, previous connection replaced")
	}
	s.log.WithField("language", s.Language).Info("session joined")
	return s, nil
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Remove drops the session and cancels its timer.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ok {
		s.close()
	}
}

// Release removes s only if it is still the registered instance for its id.
// A session with a running turn stays registered, detached, until the turn ends.
func (r *Registry) Release(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	cur, ok := r.sessions[s.ID]
	if ok && cur == s {
		if s.Processing() {
			s.released.Store(true)
			s.setEmitter(nil)
		} else {
			delete(r.sessions, s.ID)
		}
	}
	r.mu.Unlock()

	s.close()
}

// turnDone drops a released session once its last turn has finished.
func (r *Registry) turnDone(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.ID]
	if ok && cur.released.Load() && cur.turnState == s.turnState && !cur.Processing() {
		delete(r.sessions, s.ID)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) demoSession(id string, info JoinInfo) *Session {
	lang := strings.TrimSpace(info.Language)
	if lang == "" {
		lang = "en"
	}
	rubric := models.DefaultRubric(lang)
	if info.Rubric != nil && len(info.Rubric.Criteria) > 0 {
		rubric = *info.Rubric
	}
	studentID := info.StudentID
	if studentID == "" {
		studentID = "demo-student"
	}
	return &Session{
		ID:          id,
		StudentID:   studentID,
		StudentName: info.StudentName,
		Language:    lang,
		Rubric:      rubric,
		Demo:        true,
		JoinedAt:    r.cfg.Now(),
		turnState:   newTurnState(nil),
	}
}

func (r *Registry) storedSession(rec *models.OralSession, info JoinInfo) *Session {
	lang := rec.Student.TargetLanguage
	if lang == "" {
		lang = rec.Rubric.Language
	}
	if lang == "" {
		lang = info.Language
	}
	if lang == "" {
		lang = "en"
	}

	rubric := rec.Rubric.Rubric()
	if len(rubric.Criteria) == 0 {
		rubric = models.DefaultRubric(lang)
	}

	return &Session{
		ID:          rec.ID,
		StudentID:   rec.StudentID,
		StudentName: rec.Student.FirstName,
		Language:    lang,
		Rubric:      rubric,
		JoinedAt:    r.cfg.Now(),
		// resume an interview that was interrupted
		turnState: newTurnState(rec.Transcript()),
	}
}

func (r *Registry) mirrored(sessionID string, em Emitter) Emitter {
	if r.cfg.Mirror == nil {
		return em
	}
	return EmitterFunc(func(ev Event) error {
		var err error
		if em != nil {
			err = em.Emit(ev)
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.MirrorTimeout)
		defer cancel()
		if merr := r.cfg.Mirror.Publish(ctx, sessionID, ev); merr != nil {
			r.cfg.Logger.WithError(merr).WithField("session_id", sessionID).Debug("mirror publish failed")
		}
		return err
	})
}

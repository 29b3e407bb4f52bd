package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/models"
)

// Session is the live state of one joined assessment.
type Session struct {
	ID          string
	StudentID   string
	StudentName string
	Language    string
	Rubric      models.Rubric
	Demo        bool
	JoinedAt    time.Time

	buffer  *UtteranceBuffer
	silence *SilenceDetector
	log     *logrus.Entry

	// released is set when the owning connection left during a turn
	released atomic.Bool

	*turnState
}

// turnState outlives a re-join: every instance registered for the same id shares it,
// so one turn runs per session and a running turn reports to the latest connection.
type turnState struct {
	processing atomic.Bool

	mu         sync.RWMutex
	emitter    Emitter
	transcript []models.TranscriptEntry
	turns      int
}

func newTurnState(transcript []models.TranscriptEntry) *turnState {
	return &turnState{transcript: transcript}
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []models.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Processing() bool { return s.processing.Load() }

// Buffered is the number of audio bytes waiting for the next flush.
func (s *Session) Buffered() int { return s.buffer.Len() }

func (s *Session) SilenceState() SilenceState { return s.silence.State() }

func (s *Session) appendEntry(e models.TranscriptEntry) {
	s.mu.Lock()
	s.transcript = append(s.transcript, e)
	s.mu.Unlock()
}

func (s *Session) nextTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	return s.turns
}

func (s *Session) setEmitter(em Emitter) {
	s.mu.Lock()
	s.emitter = em
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	if ev.SessionID == "" {
		ev.SessionID = s.ID
	}
	s.mu.RLock()
	em := s.emitter
	s.mu.RUnlock()
	if em == nil {
		return
	}
	if err := em.Emit(ev); err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Debug("emit failed")
	}
}

// successor is a new instance for the same id that keeps the shared turn state.
func (s *Session) successor(now time.Time) *Session {
	return &Session{
		ID:          s.ID,
		StudentID:   s.StudentID,
		StudentName: s.StudentName,
		Language:    s.Language,
		Rubric:      s.Rubric,
		Demo:        s.Demo,
		JoinedAt:    now,
		turnState:   s.turnState,
	}
}

// close stops the timer and drops buffered audio. An in-flight turn finishes on its own.
func (s *Session) close() {
	s.silence.Stop()
	s.buffer.Reset()
}

package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/models"
	"github.com/Sabeehq11/CMI/internal/providers/llm"
	"github.com/Sabeehq11/CMI/internal/providers/stt"
	"github.com/Sabeehq11/CMI/internal/providers/tts"
)

const (
	DefaultFallbackQuestion = "Can you tell me more about that?"
	DefaultStageTimeout     = 20 * time.Second
	DefaultAudioFormat      = "mp3"
)

// client-visible messages
const (
	msgListening    = "Listening..."
	msgTranscribing = "Transcribing audio..."
	msgGenerating   = "Generating response..."
	msgSynthesizing = "Generating speech..."
	msgReady        = "Ready for next input"
	msgNoSpeech     = "No speech detected"
	msgSTTFailed    = "Failed to transcribe audio"
	msgTTSFailed    = "Failed to generate speech"
)

// Store persists the transcript of stored sessions.
type Store interface {
	SaveTranscript(ctx context.Context, sessionID string, transcript []models.TranscriptEntry) error
}

// TurnRecorder keeps a report per processed utterance.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rep *models.TurnLog) error
}

// AudioArchiver uploads the raw utterance and returns where it went.
type AudioArchiver interface {
	ArchiveUtterance(ctx context.Context, sessionID string, turn int, audio []byte) (string, error)
}

type PipelineConfig struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	Store    Store
	Recorder TurnRecorder
	Archiver AudioArchiver

	// StageTimeout bounds transcription, generation and persistence each.
	StageTimeout time.Duration
	// SpeechTimeout bounds synthesis including fallbacks; defaults to 2*StageTimeout.
	SpeechTimeout time.Duration

	FallbackQuestion string
	Logger           *logrus.Logger
	Now              func() time.Time

	// onTurnDone runs after every turn, once the processing flag is clear.
	onTurnDone func(*Session)
}

// Pipeline turns one flushed utterance into transcription, follow-up question and speech.
type Pipeline struct {
	cfg PipelineConfig
	log *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = 2 * cfg.StageTimeout
	}
	if strings.TrimSpace(cfg.FallbackQuestion) == "" {
		cfg.FallbackQuestion = DefaultFallbackQuestion
	}

	// turns outlive the connection that started them
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{cfg: cfg, log: cfg.Logger, ctx: ctx, cancel: cancel}
}

// Flush claims the session and starts a turn on the buffered audio.
// It returns false when a turn is already running or nothing was buffered.
func (p *Pipeline) Flush(s *Session) bool {
	if !s.processing.CompareAndSwap(false, true) {
		s.log.Debug("flush dropped, turn in progress")
		return false
	}

	audio := s.buffer.Drain()
	if len(audio) == 0 {
		s.processing.Store(false)
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.RunTurn(p.ctx, s, audio)
	}()
	return true
}

// RunTurn processes one utterance. The caller must hold the session's processing flag;
// RunTurn clears it before the terminal ready or error event.
func (p *Pipeline) RunTurn(ctx context.Context, s *Session, audio []byte) {
	start := p.cfg.Now()
	turn := s.nextTurn()
	log := s.log.WithField("turn", turn)

	rep := &models.TurnLog{
		SessionID:  s.ID,
		TurnIndex:  int64(turn),
		Language:   s.Language,
		Demo:       s.Demo,
		AudioBytes: len(audio),
		STTStatus:  models.StageSkipped,
		LLMStatus:  models.StageSkipped,
		TTSStatus:  models.StageSkipped,
		Timestamp:  start,
	}

	finish := func(ev Event) {
		s.processing.Store(false)
		s.emit(ev)
		rep.ProcessingTimeMS = p.cfg.Now().Sub(start).Milliseconds()
		log.WithFields(logrus.Fields{
			"stt":      rep.STTStatus,
			"llm":      rep.LLMStatus,
			"tts":      rep.TTSStatus,
			"duration": rep.ProcessingTimeMS,
		}).Info("turn finished")
		p.afterTurn(ctx, s, turn, audio, rep)
		if p.cfg.onTurnDone != nil {
			p.cfg.onTurnDone(s)
		}
	}

	// 1. transcription
	s.emit(processingEvent(msgTranscribing))
	text, conf, err := p.transcribe(ctx, s, audio)
	if err != nil {
		rep.STTStatus = models.StageFailed
		log.WithError(err).Error("transcription failed")
		finish(errorEvent(msgSTTFailed))
		return
	}
	rep.STTStatus = models.StageDone
	rep.STTConfidence = conf

	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("empty transcription, nothing to answer")
		finish(readyEvent(msgNoSpeech))
		return
	}
	rep.StudentText = text
	s.appendEntry(models.TranscriptEntry{Speaker: models.SpeakerStudent, Text: text, Timestamp: p.cfg.Now()})
	s.emit(Event{Type: TypeTranscription, Text: text, Speaker: models.SpeakerStudent})

	// 2. follow-up question
	s.emit(processingEvent(msgGenerating))
	question, err := p.generate(ctx, s, turn)
	if err != nil {
		log.WithError(err).Warn("question generation failed, using fallback question")
		question = p.cfg.FallbackQuestion
		rep.LLMStatus = models.StageFallback
	} else {
		rep.LLMStatus = models.StageDone
	}
	rep.AIText = question
	s.appendEntry(models.TranscriptEntry{Speaker: models.SpeakerAI, Text: question, Timestamp: p.cfg.Now()})
	s.emit(Event{Type: TypeAIResponse, Text: question, Speaker: models.SpeakerAI})

	// 3. speech
	s.emit(processingEvent(msgSynthesizing))
	terminal := readyEvent(msgReady)
	speech, err := p.synthesize(ctx, s, question)
	if err != nil {
		rep.TTSStatus = models.StageFailed
		log.WithError(err).Error("speech synthesis failed")
		terminal = errorEvent(msgTTSFailed)
	} else {
		rep.TTSStatus = models.StageDone
		rep.TTSEngine = speech.Engine
		rep.SpeechSize = len(speech.Audio)
		format := speech.Format
		if format == "" {
			format = DefaultAudioFormat
		}
		s.emit(Event{Type: TypeAIAudio, Audio: base64.StdEncoding.EncodeToString(speech.Audio), Format: format})
	}

	// 4. persistence; the question was already delivered so failures are only logged
	rep.Persisted = p.persist(ctx, s, log)

	finish(terminal)
}

// Wait blocks until every started turn has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Shutdown cancels running turns and waits for them.
func (p *Pipeline) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

var errNoProvider = errors.New("provider not configured")

func (p *Pipeline) transcribe(ctx context.Context, s *Session, audio []byte) (string, float64, error) {
	if p.cfg.STT == nil {
		return "", 0, errNoProvider
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	return p.cfg.STT.Transcribe(ctx, audio, s.Language)
}

func (p *Pipeline) generate(ctx context.Context, s *Session, turn int) (string, error) {
	if p.cfg.LLM == nil {
		return "", errNoProvider
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	prompt := llm.BuildQuestionPrompt(s.Transcript(), s.Rubric, s.Language, llm.Hints{
		SessionID:   s.ID,
		StudentName: s.StudentName,
		Turn:        turn,
	})
	return llm.Generate(ctx, p.cfg.LLM, prompt)
}

func (p *Pipeline) synthesize(ctx context.Context, s *Session, text string) (*tts.Speech, error) {
	if p.cfg.TTS == nil {
		return nil, tts.ErrNoProvider
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SpeechTimeout)
	defer cancel()

	sp, err := p.cfg.TTS.Synthesize(ctx, text, s.Language)
	if err != nil {
		return nil, err
	}
	if sp == nil || len(sp.Audio) == 0 {
		return nil, errors.New("empty audio")
	}
	return sp, nil
}

func (p *Pipeline) persist(ctx context.Context, s *Session, log *logrus.Entry) bool {
	if s.Demo || p.cfg.Store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	if err := p.cfg.Store.SaveTranscript(ctx, s.ID, s.Transcript()); err != nil {
		log.WithError(err).Error("failed to persist transcript")
		return false
	}
	return true
}

// afterTurn archives the audio and records the report. Neither affects the client.
func (p *Pipeline) afterTurn(ctx context.Context, s *Session, turn int, audio []byte, rep *models.TurnLog) {
	if p.cfg.Archiver != nil {
		actx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
		path, err := p.cfg.Archiver.ArchiveUtterance(actx, s.ID, turn, audio)
		cancel()
		if err != nil {
			s.log.WithError(err).Warn("audio archive failed")
		} else {
			rep.AudioPath = &path
		}
	}

	if p.cfg.Recorder != nil {
		rctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
		err := p.cfg.Recorder.RecordTurn(rctx, rep)
		cancel()
		if err != nil {
			s.log.WithError(err).Warn("turn log write failed")
		}
	}
}

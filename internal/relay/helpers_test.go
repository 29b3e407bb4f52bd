package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/models"
	"github.com/Sabeehq11/CMI/internal/providers/tts"
	"github.com/Sabeehq11/CMI/internal/utils"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// manualScheduler never fires on its own; tests fire timers explicitly.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

// FireAll runs every timer that is neither stopped nor fired and returns how many ran.
func (m *manualScheduler) FireAll() int {
	m.mu.Lock()
	timers := append([]*manualTimer(nil), m.timers...)
	m.mu.Unlock()

	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		if run {
			t.fired = true
		}
		t.mu.Unlock()
		if run {
			n++
			t.f()
		}
	}
	return n
}

// ForceFire runs timer i even if it was stopped, like a timer goroutine that lost the race with Stop.
func (m *manualScheduler) ForceFire(i int) {
	m.mu.Lock()
	t := m.timers[i]
	m.mu.Unlock()
	t.f()
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

func (m *manualScheduler) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Types lists event types, skipping processing notices.
func (r *recorder) Types() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Type == TypeProcessing {
			continue
		}
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) Last() Event {
	evs := r.Events()
	if len(evs) == 0 {
		return Event{}
	}
	return evs[len(evs)-1]
}

func (r *recorder) Find(typ string) (Event, bool) {
	for _, ev := range r.Events() {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

func (r *recorder) Messages(typ string) []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev.Message)
		}
	}
	return out
}

type fakeSTT struct {
	text  string
	err   error
	block chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	audio [][]byte
	langs []string
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.audio = append(f.audio, append([]byte(nil), audio...))
	f.langs = append(f.langs, language)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, 0.9, nil
}

func (f *fakeSTT) Close() error { return nil }

func (f *fakeSTT) Received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.audio...)
}

type fakeLLM struct {
	answer string
	err    error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeLLM) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		if f.err != nil {
			close(chunks)
			errs <- f.err
			close(errs)
			return
		}
		chunks <- f.answer
		close(chunks)
		close(errs)
	}()
	return chunks, errs
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeTTS struct {
	audio []byte
	err   error
	calls atomic.Int32
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, language string) (*tts.Speech, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Speech{Audio: f.audio, Format: "mp3", Engine: "fake"}, nil
}

func (f *fakeTTS) Name() string { return "fake" }

// fakeStore is both the Source and the Store of a real-mode relay.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.OralSession
	loadErr  error
	saveErr  error
	saved    map[string][]models.TranscriptEntry
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*models.OralSession{}, saved: map[string][]models.TranscriptEntry{}}
}

func (f *fakeStore) LoadSession(ctx context.Context, id string) (*models.OralSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "fakeStore.LoadSession", "session not found", utils.ErrNotFound)
	}
	return s, nil
}

func (f *fakeStore) SaveTranscript(ctx context.Context, id string, tr []models.TranscriptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[id] = append([]models.TranscriptEntry(nil), tr...)
	return nil
}

func (f *fakeStore) Saved(id string) ([]models.TranscriptEntry, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[id], f.saves
}

type fakeTurnRecorder struct {
	mu   sync.Mutex
	reps []models.TurnLog
}

func (f *fakeTurnRecorder) RecordTurn(ctx context.Context, rep *models.TurnLog) error {
	f.mu.Lock()
	f.reps = append(f.reps, *rep)
	f.mu.Unlock()
	return nil
}

func (f *fakeTurnRecorder) Reports() []models.TurnLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TurnLog(nil), f.reps...)
}

type fakeArchiver struct {
	err error
}

func (f *fakeArchiver) ArchiveUtterance(ctx context.Context, sessionID string, turn int, audio []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "gs://bucket/sessions/" + sessionID, nil
}

var errBoom = errors.New("boom")

type harness struct {
	relay *Relay
	sched *manualScheduler
	stt   *fakeSTT
	llm   *fakeLLM
	tts   *fakeTTS
	store *fakeStore
	turns *fakeTurnRecorder
}

// newHarness builds a relay on fakes. withStore switches it from demo mode to real mode.
func newHarness(t *testing.T, withStore bool) *harness {
	t.Helper()
	h := &harness{
		sched: &manualScheduler{},
		stt:   &fakeSTT{text: "Hola, me llamo Ana"},
		llm:   &fakeLLM{answer: "¿De dónde eres?"},
		tts:   &fakeTTS{audio: []byte("mp3-bytes")},
		turns: &fakeTurnRecorder{},
	}

	opts := Options{
		Logger: quietLogger(),
		Registry: RegistryConfig{
			Scheduler:     h.sched,
			SilenceWindow: time.Second,
		},
		Pipeline: PipelineConfig{
			STT:          h.stt,
			LLM:          h.llm,
			TTS:          h.tts,
			Recorder:     h.turns,
			StageTimeout: 2 * time.Second,
		},
	}
	if withStore {
		h.store = newFakeStore()
		opts.Registry.Source = h.store
		opts.Pipeline.Store = h.store
	}
	h.relay = New(opts)
	t.Cleanup(h.relay.Shutdown)
	return h
}

func frame(t *testing.T, typ, sessionID string, data any) []byte {
	t.Helper()
	m := map[string]any{"type": typ}
	if sessionID != "" {
		m["sessionId"] = sessionID
	}
	if data != nil {
		m["data"] = data
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return b
}

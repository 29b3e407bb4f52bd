package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sabeehq11/CMI/internal/api/handlers"
	"github.com/Sabeehq11/CMI/internal/api/middleware"
	"github.com/Sabeehq11/CMI/internal/api/routes"
	"github.com/Sabeehq11/CMI/internal/providers/tts"
	"github.com/Sabeehq11/CMI/internal/relay"
)

type stubSTT struct {
	text string
	err  error
}

func (s *stubSTT) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	return s.text, 1, s.err
}

func (s *stubSTT) Close() error { return nil }

type stubLLM struct {
	answer string
	err    error
	prompt string
}

func (s *stubLLM) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	s.prompt = prompt
	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	if s.err != nil {
		errs <- s.err
	} else {
		chunks <- s.answer
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func (s *stubLLM) Close() error { return nil }

type stubTTS struct {
	err error
}

func (s *stubTTS) Synthesize(ctx context.Context, text, language string) (*tts.Speech, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Speech{Audio: []byte("ID3-" + text), Format: "mp3", Engine: "stub"}, nil
}

func (s *stubTTS) Name() string { return "stub" }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testServer struct {
	engine *gin.Engine
	relay  *relay.Relay
	stt    *stubSTT
	llm    *stubLLM
	tts    *stubTTS
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := quietLogger()

	ts := &testServer{
		stt: &stubSTT{text: "I like football"},
		llm: &stubLLM{answer: "Why do you like it?"},
		tts: &stubTTS{},
	}
	ts.relay = relay.New(relay.Options{
		Logger: log,
		Pipeline: relay.PipelineConfig{
			STT:          ts.stt,
			LLM:          ts.llm,
			TTS:          ts.tts,
			StageTimeout: 2 * time.Second,
		},
	})
	t.Cleanup(ts.relay.Shutdown)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		WS:        handlers.NewWSHandler(ts.relay, log, 1<<20),
		Interview: handlers.NewInterviewHandler(ts.stt, ts.llm, ts.tts, 2*time.Second, log),
		TurnLog:   handlers.NewTurnLogHandler(nil),
		RelayPath: "/websocket",
	})
	ts.engine = r
	return ts
}

func readEvent(t *testing.T, conn *websocket.Conn) relay.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev relay.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocket_DemoTurn(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(v any) {
		require.NoError(t, conn.WriteJSON(v))
	}

	send(map[string]any{"type": "join_session", "sessionId": "demo-e2e", "data": map[string]any{"language": "en"}})
	joined := readEvent(t, conn)
	assert.Equal(t, relay.TypeSessionJoined, joined.Type)
	assert.Equal(t, "demo-e2e", joined.SessionID)
	assert.Equal(t, true, joined.Data["demo"])

	send(map[string]any{"type": "audio_chunk", "sessionId": "demo-e2e", "data": map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("opus"))}})
	listening := readEvent(t, conn)
	assert.Equal(t, relay.TypeProcessing, listening.Type)
	assert.Equal(t, "Listening...", listening.Message)

	send(map[string]any{"type": "audio_end", "sessionId": "demo-e2e"})

	var types []string
	var last relay.Event
	for i := 0; i < 10; i++ {
		ev := readEvent(t, conn)
		if ev.Type != relay.TypeProcessing {
			types = append(types, ev.Type)
		}
		last = ev
		if ev.Type == relay.TypeReady || ev.Type == relay.TypeError {
			break
		}
	}
	assert.Equal(t, []string{relay.TypeTranscription, relay.TypeAIResponse, relay.TypeAIAudio, relay.TypeReady}, types)
	assert.Equal(t, "Ready for next input", last.Message)

	send(map[string]any{"type": "ping"})
	assert.Equal(t, relay.TypePong, readEvent(t, conn).Type)
}

func TestWebSocket_ErrorsKeepConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	assert.Equal(t, relay.TypeError, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio_end", "sessionId": "ghost"}))
	ev := readEvent(t, conn)
	assert.Equal(t, relay.TypeError, ev.Type)
	assert.Equal(t, "Session not found", ev.Message)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, relay.TypePong, readEvent(t, conn).Type)
}

func TestWebSocket_OversizedFrameKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	big := `{"type":"audio_chunk","sessionId":"demo-big","data":{"audio":"` + strings.Repeat("A", 2<<20) + `"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))
	ev := readEvent(t, conn)
	assert.Equal(t, relay.TypeError, ev.Type)
	assert.Equal(t, "message too large", ev.Message)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, relay.TypePong, readEvent(t, conn).Type)
}

func TestWebSocket_DisconnectReleasesSession(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_session", "sessionId": "demo-bye"}))
	readEvent(t, conn)
	require.Equal(t, 1, ts.relay.Registry().Len())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ts.relay.Registry().Len() == 0 }, 3*time.Second, 20*time.Millisecond)
}

func multipartAudio(t *testing.T, audio []byte, language string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if audio != nil {
		fw, err := mw.CreateFormFile("audio", "clip.webm")
		require.NoError(t, err)
		_, err = fw.Write(audio)
		require.NoError(t, err)
	}
	if language != "" {
		require.NoError(t, mw.WriteField("language", language))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestTranscribe(t *testing.T) {
	ts := newTestServer(t)
	body, ct := multipartAudio(t, []byte("webm-bytes"), "es")

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.TranscribeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "I like football", resp.Transcription)
	assert.Equal(t, len("webm-bytes"), resp.AudioSize)
}

func TestTranscribe_MissingFile(t *testing.T) {
	ts := newTestServer(t)
	body, ct := multipartAudio(t, nil, "en")

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No audio file provided")
}

func TestTranscribe_EngineFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.stt.err = errors.New("whisper down")
	body, ct := multipartAudio(t, []byte("x"), "")

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"INTERNAL","message":"Failed to transcribe audio"}`, w.Body.String())
}

func postJSON(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestGenerateResponse(t *testing.T) {
	ts := newTestServer(t)
	w := postJSON(t, ts.engine, "/api/generate-response", `{
		"transcript": [{"speaker":"student","text":"I like football","timestamp":"2025-01-01T10:00:00Z"}],
		"language": "en",
		"sessionContext": {"studentName": "Sam"}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Why do you like it?", resp.Response)
	assert.Equal(t, "mp3", resp.AudioFormat)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ID3-Why do you like it?")), resp.Audio)
	assert.Contains(t, ts.llm.prompt, "Student: I like football")
	assert.Contains(t, ts.llm.prompt, "Sam")
}

func TestGenerateResponse_FallbackQuestion(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.err = errors.New("quota")
	w := postJSON(t, ts.engine, "/api/generate-response", `{"transcript": [], "language": "es"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, relay.DefaultFallbackQuestion, resp.Response)
}

func TestGenerateResponse_InvalidTranscript(t *testing.T) {
	ts := newTestServer(t)
	w := postJSON(t, ts.engine, "/api/generate-response", `{"language": "en"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid transcript data")
}

func TestGenerateResponse_SpeechFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.tts.err = errors.New("elevenlabs down")
	w := postJSON(t, ts.engine, "/api/generate-response", `{"transcript": []}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to generate speech")
}

func TestTurnLog_Unconfigured(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/session/abc/turns", nil)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "UNAVAILABLE")
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Sabeehq11/CMI/internal/models"
	"github.com/Sabeehq11/CMI/internal/providers/llm"
	"github.com/Sabeehq11/CMI/internal/providers/stt"
	"github.com/Sabeehq11/CMI/internal/providers/tts"
	"github.com/Sabeehq11/CMI/internal/relay"
	"github.com/Sabeehq11/CMI/internal/utils"
)

const maxUploadBytes = 25 << 20

// InterviewHandler exposes one-shot transcription and question generation over HTTP.
type InterviewHandler struct {
	stt      stt.Provider
	llm      llm.Provider
	tts      tts.Provider
	timeout  time.Duration
	fallback string
	log      *logrus.Logger
}

func NewInterviewHandler(s stt.Provider, l llm.Provider, t tts.Provider, timeout time.Duration, log *logrus.Logger) *InterviewHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InterviewHandler{stt: s, llm: l, tts: t, timeout: timeout, fallback: relay.DefaultFallbackQuestion, log: log}
}

type TranscribeResponse struct {
	Transcription string `json:"transcription"`
	Success       bool   `json:"success"`
	AudioSize     int    `json:"audioSize"`
}

func (h *InterviewHandler) Transcribe(c *gin.Context) {
	const op = "InterviewHandler.Transcribe"

	if h.stt == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "speech recognition is not configured", nil))
		return
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "No audio file provided", err))
		return
	}
	if fh.Size > maxUploadBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "Audio file too large (max 25MB)", nil))
		return
	}
	language := strings.TrimSpace(c.PostForm("language"))
	if language == "" {
		language = "en"
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable audio file", err))
		return
	}
	defer f.Close()

	audio, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable audio file", err))
		return
	}
	if len(audio) > maxUploadBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "Audio file too large (max 25MB)", nil))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	text, _, err := h.stt.Transcribe(ctx, audio, language)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "Failed to transcribe audio", err))
		return
	}

	c.JSON(http.StatusOK, TranscribeResponse{
		Transcription: strings.TrimSpace(text),
		Success:       true,
		AudioSize:     len(audio),
	})
}

type SessionContext struct {
	SessionID   string `json:"sessionId"`
	StudentName string `json:"studentName"`
}

type GenerateRequest struct {
	Transcript     []models.TranscriptEntry `json:"transcript"`
	Rubric         *models.Rubric           `json:"rubric"`
	Language       string                   `json:"language"`
	SessionContext SessionContext           `json:"sessionContext"`
}

type GenerateResponse struct {
	Response    string `json:"response"`
	Audio       string `json:"audio"`
	AudioFormat string `json:"audioFormat"`
	Success     bool   `json:"success"`
}

func (h *InterviewHandler) GenerateResponse(c *gin.Context) {
	const op = "InterviewHandler.GenerateResponse"

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Transcript == nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "Invalid transcript data", err))
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	rubric := models.DefaultRubric(req.Language)
	if req.Rubric != nil && len(req.Rubric.Criteria) > 0 {
		rubric = *req.Rubric
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	question := h.fallback
	if h.llm != nil {
		prompt := llm.BuildQuestionPrompt(req.Transcript, rubric, req.Language, llm.Hints{
			SessionID:   req.SessionContext.SessionID,
			StudentName: req.SessionContext.StudentName,
			Turn:        len(req.Transcript) / 2,
		})
		if out, err := llm.Generate(ctx, h.llm, prompt); err != nil {
			h.log.WithError(err).Warn("question generation failed, using fallback question")
		} else {
			question = out
		}
	}

	if h.tts == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "Failed to generate speech", tts.ErrNoProvider))
		return
	}
	speech, err := h.tts.Synthesize(ctx, question, req.Language)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "Failed to generate speech", err))
		return
	}
	format := speech.Format
	if format == "" {
		format = relay.DefaultAudioFormat
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Response:    question,
		Audio:       base64.StdEncoding.EncodeToString(speech.Audio),
		AudioFormat: format,
		Success:     true,
	})
}

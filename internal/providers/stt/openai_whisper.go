package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

type OpenAIWhisper struct {
	client   *openai.Client
	model    string
	fileName string
}

func NewOpenAIWhisper(apiKey string) *OpenAIWhisper {
	return &OpenAIWhisper{
		client:   openai.NewClient(apiKey),
		model:    openai.Whisper1,
		fileName: "audio.webm",
	}
}

func (w *OpenAIWhisper) Close() error { return nil }

func (w *OpenAIWhisper) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: w.fileName, // used as the multipart file name when Reader is set
		Reader:   bytes.NewReader(audio),
		Language: BaseLanguage(language),
	})
	if err != nil {
		return "", 0, fmt.Errorf("whisper transcription failed: %w", err)
	}
	// whisper does not report a confidence
	return resp.Text, 0, nil
}

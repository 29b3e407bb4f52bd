package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haguro/elevenlabs-go"
)

// voice per target language; anything else falls back to English
var elevenLabsVoices = map[string]string{
	"en": "pNInz6obpgDQGcFmaJgB",
	"es": "9BWtsMINqrJLrRacOk9x",
	"ar": "yoZ06aMxZJJ28mfd3POQ",
	"ru": "Yko7PKHZNXotIFUBG7I9",
	"uk": "EXAVITQu4vr4xnSDxMaL",
}

type ElevenLabs struct {
	apiKey  string
	modelID string
	timeout time.Duration
}

func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:  apiKey,
		modelID: "eleven_flash_v2",
		timeout: 30 * time.Second,
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Synthesize(ctx context.Context, text, language string) (*Speech, error) {
	if e.apiKey == "" {
		return nil, errors.New("ElevenLabs API key not configured")
	}

	client := elevenlabs.NewClient(ctx, e.apiKey, e.timeout)
	audio, err := client.TextToSpeech(VoiceFor(language), elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: &elevenlabs.VoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}
	return &Speech{Audio: audio, Format: "mp3", Engine: e.Name()}, nil
}

func VoiceFor(language string) string {
	if v, ok := elevenLabsVoices[baseLanguage(language)]; ok {
		return v
	}
	return elevenLabsVoices["en"]
}

func baseLanguage(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '-' || v[i] == '_' {
			return v[:i]
		}
	}
	return v
}

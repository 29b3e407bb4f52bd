package stt

import (
	"context"
	"strings"
)

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}

// NormalizeLanguage maps the short codes students are enrolled with to BCP-47 tags.
func NormalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "", "en", "en-US":
		return "en-US"
	case "es", "es-ES":
		return "es-ES"
	case "ar", "ar-SA":
		return "ar-SA"
	case "ru", "ru-RU":
		return "ru-RU"
	case "uk", "uk-UA":
		return "uk-UA"
	case "id", "id-ID":
		return "id-ID"
	default:
		return v
	}
}

// BaseLanguage strips the region: "en-US" -> "en".
func BaseLanguage(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, "-_"); i > 0 {
		v = v[:i]
	}
	if v == "" {
		return "en"
	}
	return strings.ToLower(v)
}

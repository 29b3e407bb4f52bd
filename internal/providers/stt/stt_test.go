package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":      "en-US",
		"en":    "en-US",
		"es":    "es-ES",
		" ar ":  "ar-SA",
		"ru":    "ru-RU",
		"uk":    "uk-UA",
		"id":    "id-ID",
		"fr-FR": "fr-FR",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLanguage(in), in)
	}
}

func TestBaseLanguage(t *testing.T) {
	assert.Equal(t, "en", BaseLanguage("en-US"))
	assert.Equal(t, "pt", BaseLanguage("PT_br"))
	assert.Equal(t, "es", BaseLanguage("es"))
	assert.Equal(t, "en", BaseLanguage(""))
}

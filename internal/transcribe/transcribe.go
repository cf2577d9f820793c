// Package transcribe turns voice notes into text.
package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for audio.
const DefaultModelName = "gemini-2.5-flash"

const prompt = "Transcribe este audio en español. Devuelve solo el texto transcrito, sin comillas ni comentarios. Si no hay voz, devuelve una cadena vacía."

// Transcriber converts audio to text. An empty string means nothing was
// understood.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Gemini implements Transcriber by sending the audio inline.
type Gemini struct {
	gen     extraction.Generator
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewGemini creates a Gemini transcriber.
func NewGemini(gen extraction.Generator, model string, timeout time.Duration, log zerolog.Logger) *Gemini {
	if model == "" {
		model = DefaultModelName
	}
	return &Gemini{gen: gen, model: model, timeout: timeout, log: log}
}

func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
		},
	}}

	start := time.Now()
	resp, err := g.gen.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)})
	if err != nil {
		return "", fmt.Errorf("Transcribe: %w: %w", domain.ErrAdapterUnavailable, err)
	}

	text := strings.Trim(strings.TrimSpace(resp.Text()), `"`)
	g.log.Debug().Int("bytes", len(audio)).Dur("took", time.Since(start)).Str("text", text).Msg("Transcribed voice note")
	return text, nil
}

var _ Transcriber = (*Gemini)(nil)

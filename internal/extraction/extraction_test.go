package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// mockGenerator is a func-field mock of Generator.
type mockGenerator struct {
	generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	calls        [][]*genai.Content
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls = append(m.calls, contents)
	return m.generateFunc(ctx, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func respondWith(text string) *mockGenerator {
	return &mockGenerator{
		generateFunc: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(text), nil
		},
	}
}

func TestGemini_ExtractText(t *testing.T) {
	gen := respondWith(`{"amount": 50, "currency": "PEN", "category": "transporte", "merchant": "Uber", "description": null}`)
	g := NewGemini(gen, "", 0, zerolog.Nop())

	out := g.Extract(context.Background(), TextInput("50 uber", nil), DomainChatFreeform)

	s, ok := out.(Success)
	if !ok {
		t.Fatalf("expected Success, got %T", out)
	}
	if s.Candidate.Merchant != "Uber" || s.Candidate.Amount.String() != "50" {
		t.Errorf("unexpected candidate %+v", s.Candidate)
	}

	if len(gen.calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(gen.calls))
	}
	parts := gen.calls[0][0].Parts
	if len(parts) != 2 || parts[1].Text != "50 uber" {
		t.Errorf("user text not forwarded: %+v", parts)
	}
}

func TestGemini_ExtractImageSendsInlineData(t *testing.T) {
	gen := respondWith(`{"error": "no es un comprobante"}`)
	g := NewGemini(gen, "gemini-test", 0, zerolog.Nop())

	img := []byte{0xff, 0xd8, 0xff}
	out := g.Extract(context.Background(), ImageInput(img, "image/jpeg", nil), DomainReceiptPhoto)

	if _, ok := out.(Rejected); !ok {
		t.Fatalf("expected Rejected, got %T", out)
	}

	parts := gen.calls[0][0].Parts
	var blob *genai.Blob
	for _, p := range parts {
		if p.InlineData != nil {
			blob = p.InlineData
		}
	}
	if blob == nil || blob.MIMEType != "image/jpeg" || len(blob.Data) != 3 {
		t.Errorf("expected inline image blob, got %+v", blob)
	}
}

func TestGemini_CurrencyHintInPrompt(t *testing.T) {
	gen := respondWith("null")
	g := NewGemini(gen, "", 0, zerolog.Nop())
	cop := domain.CurrencyCOP

	g.Extract(context.Background(), ImageInput([]byte{1}, "image/png", &cop), DomainReceiptPhoto)

	prompt := gen.calls[0][0].Parts[0].Text
	if !strings.Contains(prompt, "normalmente registra gastos en COP") {
		t.Error("receipt prompt should carry the preferred currency hint")
	}
	if !strings.Contains(prompt, "Contexto geográfico > Símbolo de moneda") {
		t.Error("receipt prompt should rank geographic cues above symbols")
	}
}

func TestGemini_ServiceErrorIsAdapterFailure(t *testing.T) {
	gen := &mockGenerator{
		generateFunc: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("deadline exceeded")
		},
	}
	g := NewGemini(gen, "", 0, zerolog.Nop())

	out := g.Extract(context.Background(), TextInput("50 uber", nil), DomainChatFreeform)

	f, ok := out.(AdapterFailure)
	if !ok {
		t.Fatalf("expected AdapterFailure, got %T", out)
	}
	if !errors.Is(f.Err, domain.ErrAdapterUnavailable) {
		t.Errorf("expected ErrAdapterUnavailable, got %v", f.Err)
	}
}

func TestGemini_EmptyInputRejectedWithoutCall(t *testing.T) {
	gen := respondWith("null")
	g := NewGemini(gen, "", 0, zerolog.Nop())

	if _, ok := g.Extract(context.Background(), TextInput("", nil), DomainChatFreeform).(Rejected); !ok {
		t.Error("empty text should be rejected")
	}
	if len(gen.calls) != 0 {
		t.Error("model should not be called for empty input")
	}
}

func TestPromptFor_ListsEveryCategory(t *testing.T) {
	for _, d := range []Domain{DomainChatFreeform, DomainBankEmail, DomainReceiptPhoto} {
		p, err := promptFor(d, nil)
		if err != nil {
			t.Fatalf("promptFor(%s): %v", d, err)
		}
		for _, c := range domain.Categories {
			if !strings.Contains(p, c.WireTag) {
				t.Errorf("prompt %s is missing category %s", d, c.WireTag)
			}
		}
	}

	if _, err := promptFor("bogus", nil); err == nil {
		t.Error("expected error for unknown domain")
	}
}

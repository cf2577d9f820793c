// Package extraction wraps the Gemini model that turns free text, bank
// emails and receipt photos into expense candidates.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for extraction.
const DefaultModelName = "gemini-2.5-flash"

// Domain selects the prompt and the fields expected back from the model.
type Domain string

const (
	DomainBankEmail    Domain = "bankEmail"
	DomainChatFreeform Domain = "chatFreeform"
	DomainReceiptPhoto Domain = "receiptPhoto"
)

// InputKind distinguishes text from image input.
type InputKind int

const (
	InputText InputKind = iota
	InputImage
)

// Input is what gets sent to the model. Text is set for InputText, Image and
// MIMEType for InputImage. CurrencyHint is the user's usual currency, if any.
type Input struct {
	Kind         InputKind
	Text         string
	Image        []byte
	MIMEType     string
	CurrencyHint *domain.Currency
}

// TextInput builds a text Input.
func TextInput(text string, hint *domain.Currency) Input {
	return Input{Kind: InputText, Text: text, CurrencyHint: hint}
}

// ImageInput builds an image Input.
func ImageInput(data []byte, mimeType string, hint *domain.Currency) Input {
	return Input{Kind: InputImage, Image: data, MIMEType: mimeType, CurrencyHint: hint}
}

// Outcome is one of Success, Rejected or AdapterFailure.
type Outcome interface {
	outcome()
}

// Success carries a candidate whose amount is known to be positive. Category,
// currency, merchant and date are still raw and must be normalized.
type Success struct {
	Candidate domain.Candidate
}

// Rejected means the input is not a transaction, or the model's answer did
// not validate. It is a normal outcome, not an error.
type Rejected struct {
	Reason string
}

// AdapterFailure means the model could not be reached or answered with
// something unparseable. Err wraps domain.ErrAdapterUnavailable.
type AdapterFailure struct {
	Err error
}

func (Success) outcome()        {}
func (Rejected) outcome()       {}
func (AdapterFailure) outcome() {}

func failure(format string, args ...any) AdapterFailure {
	return AdapterFailure{Err: fmt.Errorf("%w: %s", domain.ErrAdapterUnavailable, fmt.Sprintf(format, args...))}
}

// Extractor is the capability the pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, in Input, d Domain) Outcome
}

// Generator is the subset of *genai.Models used here.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient creates a Gemini API client. An empty apiKey lets the SDK fall
// back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewClient: create genai client: %w", err)
	}
	return client, nil
}

// Gemini implements Extractor with a Gemini model.
type Gemini struct {
	gen     Generator
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewGemini creates a Gemini extractor. A zero timeout means no per-call
// deadline beyond the caller's context.
func NewGemini(gen Generator, model string, timeout time.Duration, log zerolog.Logger) *Gemini {
	if model == "" {
		model = DefaultModelName
	}
	return &Gemini{gen: gen, model: model, timeout: timeout, log: log}
}

// Extract sends the input to the model with the prompt for d and parses the
// answer once, here, into a typed Outcome.
func (g *Gemini) Extract(ctx context.Context, in Input, d Domain) Outcome {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt, err := promptFor(d, in.CurrencyHint)
	if err != nil {
		return failure("%v", err)
	}

	parts := []*genai.Part{{Text: prompt}}
	switch in.Kind {
	case InputImage:
		if len(in.Image) == 0 {
			return Rejected{Reason: "imagen vacía"}
		}
		parts = append(parts,
			&genai.Part{InlineData: &genai.Blob{MIMEType: in.MIMEType, Data: in.Image}},
			&genai.Part{Text: "Extrae la información del comprobante."},
		)
	default:
		if in.Text == "" {
			return Rejected{Reason: "mensaje vacío"}
		}
		parts = append(parts, &genai.Part{Text: in.Text})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}

	resp, err := g.gen.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.log.Error().Err(err).Str("domain", string(d)).Msg("Model call failed")
		return failure("generate content: %v", err)
	}

	raw := resp.Text()
	g.log.Debug().Str("domain", string(d)).Str("raw", raw).Msg("Model response")

	out := parseOutcome(raw, d)
	if f, ok := out.(AdapterFailure); ok {
		g.log.Error().Err(f.Err).Str("domain", string(d)).Str("raw", raw).Msg("Unparseable model response")
	}
	return out
}

var _ Extractor = (*Gemini)(nil)

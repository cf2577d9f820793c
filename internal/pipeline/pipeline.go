// Package pipeline runs an extracted expense through currency preference,
// normalization, duplicate detection and persistence.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/rs/zerolog"
)

// Outcome is how a pipeline run ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeSaved means a new expense was persisted (state.Saved).
	OutcomeSaved
	// OutcomeDuplicate means the candidate collided and was staged
	// (state.Pending).
	OutcomeDuplicate
	// OutcomeRejected means the input was not a transaction (state.Reason).
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	default:
		return "none"
	}
}

// MediaFetcher downloads media held by a transport.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, ref domain.MediaRef) (data []byte, mimeType string, err error)
}

// Archiver keeps a copy of a receipt image and returns where it was stored.
type Archiver interface {
	ArchiveReceipt(ctx context.Context, userKey string, data []byte, mimeType string) (string, error)
}

// CurrencyPreferrer returns the user's habitual currency, or nil.
type CurrencyPreferrer interface {
	PreferredCurrency(ctx context.Context, userKey string) (*domain.Currency, error)
}

// Stager records a candidate that collided with an existing expense.
type Stager interface {
	Stage(userKey, existingID string, c domain.Candidate) domain.PendingDuplicate
}

// PipelineStep represents a single step in the expense pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserKey string
	Domain  extraction.Domain

	// Input. Text for chat and email, Image or Media for receipts.
	Text     string
	Media    *domain.MediaRef
	Image    []byte
	MIMEType string

	CurrencyHint *domain.Currency
	Candidate    domain.Candidate

	Saved      *domain.Expense
	Pending    *domain.PendingDuplicate
	Reason     string
	ArchiveURI string

	Outcome Outcome
	Halted  bool
}

func (s *PipelineState) halt(o Outcome) {
	s.Outcome = o
	s.Halted = true
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially until one fails or halts the run.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if state.Halted {
			return nil
		}
	}
	return nil
}

// Deps are the collaborators of the expense pipeline. Fetcher and Archiver
// are optional.
type Deps struct {
	Fetcher   MediaFetcher
	Ledger    CurrencyPreferrer
	Extractor extraction.Extractor
	Repo      store.ExpenseRepository
	Pending   Stager
	Archiver  Archiver
	Now       func() time.Time
	Log       zerolog.Logger
}

// NewExpensePipeline creates the standard pipeline for one extraction
// domain.
func NewExpensePipeline(d Deps, dom extraction.Domain) *Pipeline {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	steps := []PipelineStep{}
	if dom == extraction.DomainReceiptPhoto {
		steps = append(steps, &FetchMediaStep{Fetcher: d.Fetcher})
	}
	steps = append(steps,
		&PreferredCurrencyStep{Ledger: d.Ledger, Log: d.Log},
		&ExtractStep{Extractor: d.Extractor},
	)
	if dom == extraction.DomainBankEmail {
		steps = append(steps, &BankDescriptionStep{})
	}
	steps = append(steps,
		&NormalizeStep{Now: now},
		&DuplicateCheckStep{Repo: d.Repo, Pending: d.Pending, Log: d.Log},
		&PersistStep{Repo: d.Repo, Pending: d.Pending, Log: d.Log},
	)
	if dom == extraction.DomainReceiptPhoto && d.Archiver != nil {
		steps = append(steps, &ArchiveReceiptStep{Archiver: d.Archiver, Log: d.Log})
	}
	return NewPipeline(steps...)
}

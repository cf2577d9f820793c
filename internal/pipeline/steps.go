package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/normalize"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/rs/zerolog"
)

// Bank email descriptions.
const (
	bankCardPrefix       = "Tarjeta ****"
	bankEmailDescription = "Email bancario"
)

// FetchMediaStep downloads the receipt image unless it is already loaded.
type FetchMediaStep struct {
	Fetcher MediaFetcher
}

func (s *FetchMediaStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Image) > 0 || state.Media == nil {
		return nil
	}
	if s.Fetcher == nil {
		return fmt.Errorf("FetchMediaStep: no fetcher for %s media", state.Media.Channel)
	}

	data, mimeType, err := s.Fetcher.FetchMedia(ctx, *state.Media)
	if err != nil {
		return fmt.Errorf("FetchMediaStep: %w", err)
	}
	state.Image = data
	state.MIMEType = mimeType
	if state.MIMEType == "" {
		state.MIMEType = state.Media.MIMEType
	}
	return nil
}

// PreferredCurrencyStep loads the user's habitual currency as a hint. It is
// best effort: a failed lookup leaves the hint empty.
type PreferredCurrencyStep struct {
	Ledger CurrencyPreferrer
	Log    zerolog.Logger
}

func (s *PreferredCurrencyStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Ledger == nil {
		return nil
	}
	hint, err := s.Ledger.PreferredCurrency(ctx, state.UserKey)
	if err != nil {
		s.Log.Warn().Err(err).Str("user", state.UserKey).Msg("Preferred currency lookup failed")
		return nil
	}
	state.CurrencyHint = hint
	return nil
}

// ExtractStep calls the extraction adapter.
type ExtractStep struct {
	Extractor extraction.Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	in := extraction.TextInput(state.Text, state.CurrencyHint)
	if len(state.Image) > 0 {
		in = extraction.ImageInput(state.Image, state.MIMEType, state.CurrencyHint)
	}

	switch out := s.Extractor.Extract(ctx, in, state.Domain).(type) {
	case extraction.Success:
		state.Candidate = out.Candidate
		return nil
	case extraction.Rejected:
		state.Reason = out.Reason
		state.halt(OutcomeRejected)
		return nil
	case extraction.AdapterFailure:
		return fmt.Errorf("ExtractStep: %w", out.Err)
	default:
		return fmt.Errorf("ExtractStep: %w: unexpected outcome %T", domain.ErrAdapterUnavailable, out)
	}
}

// BankDescriptionStep labels bank email expenses with the card they were
// charged to.
type BankDescriptionStep struct{}

func (s *BankDescriptionStep) Execute(_ context.Context, state *PipelineState) error {
	desc := bankEmailDescription
	if state.Candidate.CardLast4 != "" {
		desc = bankCardPrefix + state.Candidate.CardLast4
	}
	state.Candidate.Description = &desc
	return nil
}

// NormalizeStep clamps the candidate onto the expense invariants.
type NormalizeStep struct {
	Now func() time.Time
}

func (s *NormalizeStep) Execute(_ context.Context, state *PipelineState) error {
	state.Candidate = normalize.Normalize(state.Candidate, state.CurrencyHint, civil.DateOf(s.Now()))
	return nil
}

// DuplicateCheckStep stages the candidate when the user already has an
// expense with the same merchant, amount and date.
type DuplicateCheckStep struct {
	Repo    store.ExpenseRepository
	Pending Stager
	Log     zerolog.Logger
}

func (s *DuplicateCheckStep) Execute(ctx context.Context, state *PipelineState) error {
	c := state.Candidate
	existing, err := s.Repo.FindDuplicate(ctx, state.UserKey, c.Merchant, c.Amount, c.Date)
	if err != nil {
		return fmt.Errorf("DuplicateCheckStep: %w", err)
	}
	if existing == nil {
		return nil
	}
	stage(s.Pending, s.Log, state, existing.ID)
	return nil
}

// PersistStep inserts the expense. Losing an insert race against an
// identical expense is reported as a duplicate.
type PersistStep struct {
	Repo    store.ExpenseRepository
	Pending Stager
	Log     zerolog.Logger
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	saved, err := s.Repo.InsertExpense(ctx, domain.NewExpense(state.UserKey, state.Candidate))
	if err == nil {
		state.Saved = &saved
		state.Outcome = OutcomeSaved
		s.Log.Info().Str("user", state.UserKey).Str("expense_id", saved.ID).Msg("Saved expense")
		return nil
	}
	if !errors.Is(err, domain.ErrDuplicateExpense) {
		return fmt.Errorf("PersistStep: %w", err)
	}

	c := state.Candidate
	existing, findErr := s.Repo.FindDuplicate(ctx, state.UserKey, c.Merchant, c.Amount, c.Date)
	if findErr != nil {
		return fmt.Errorf("PersistStep: re-read duplicate: %w", findErr)
	}
	if existing == nil {
		return fmt.Errorf("PersistStep: %w", err)
	}
	stage(s.Pending, s.Log, state, existing.ID)
	return nil
}

func stage(p Stager, log zerolog.Logger, state *PipelineState, existingID string) {
	pd := p.Stage(state.UserKey, existingID, state.Candidate)
	state.Pending = &pd
	state.halt(OutcomeDuplicate)
	log.Info().Str("user", state.UserKey).Str("existing_id", existingID).Msg("Duplicate expense detected")
}

// ArchiveReceiptStep uploads the receipt image. Failures are logged only.
type ArchiveReceiptStep struct {
	Archiver Archiver
	Log      zerolog.Logger
}

func (s *ArchiveReceiptStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil || len(state.Image) == 0 {
		return nil
	}
	uri, err := s.Archiver.ArchiveReceipt(ctx, state.UserKey, state.Image, state.MIMEType)
	if err != nil {
		s.Log.Warn().Err(err).Str("user", state.UserKey).Msg("Receipt archive failed")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// Package assistant is the bot's core: it takes transport-neutral messages
// and bank emails, runs them through routing, extraction and deduplication,
// and answers every outcome with one reply.
package assistant

import (
	"context"
	"time"

	"github.com/dvloznov/expense-bot/internal/dedup"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/identity"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/linkcode"
	"github.com/dvloznov/expense-bot/internal/metrics"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/transcribe"
	"github.com/rs/zerolog"
)

// DefaultBankName is shown in bank email confirmations.
const DefaultBankName = "Interbank"

// DefaultSenderKeywords are matched against a bank email's sender and
// subject.
var DefaultSenderKeywords = []string{"interbank"}

// Config holds the user-facing settings of the Service.
type Config struct {
	DashboardURL   string
	BankName       string
	SenderKeywords []string
	// ProgressReplies sends "analyzing" and "listening" notes before slow
	// media work.
	ProgressReplies bool
}

// Deps are the Service collaborators. Transcriber, Fetcher and Archiver
// are optional; without them voice and image messages get an error reply.
type Deps struct {
	Inbound     *dedup.Inbound
	Identity    *identity.Resolver
	Ledger      *ledger.Gateway
	Pending     *dedup.Pending
	Links       *linkcode.Service
	Extractor   extraction.Extractor
	Transcriber transcribe.Transcriber
	Fetcher     pipeline.MediaFetcher
	Archiver    pipeline.Archiver
	Notifier    jobs.Notifier
	Now         func() time.Time
	Log         zerolog.Logger
}

// Service handles inbound messages from every channel.
type Service struct {
	inbound     *dedup.Inbound
	identity    *identity.Resolver
	ledger      *ledger.Gateway
	pending     *dedup.Pending
	links       *linkcode.Service
	transcriber transcribe.Transcriber
	fetcher     pipeline.MediaFetcher
	notifier    jobs.Notifier
	pipelines   map[extraction.Domain]*pipeline.Pipeline
	cfg         Config
	now         func() time.Time
	log         zerolog.Logger
}

// New creates a Service.
func New(d Deps, cfg Config) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.BankName == "" {
		cfg.BankName = DefaultBankName
	}
	if len(cfg.SenderKeywords) == 0 {
		cfg.SenderKeywords = DefaultSenderKeywords
	}

	pd := pipeline.Deps{
		Fetcher:   d.Fetcher,
		Ledger:    d.Ledger,
		Extractor: d.Extractor,
		Repo:      d.Ledger.Repository(),
		Pending:   d.Pending,
		Archiver:  d.Archiver,
		Now:       d.Now,
		Log:       d.Log,
	}
	pipelines := make(map[extraction.Domain]*pipeline.Pipeline, 3)
	for _, dom := range []extraction.Domain{extraction.DomainChatFreeform, extraction.DomainReceiptPhoto, extraction.DomainBankEmail} {
		pipelines[dom] = pipeline.NewExpensePipeline(pd, dom)
	}

	return &Service{
		inbound:     d.Inbound,
		identity:    d.Identity,
		ledger:      d.Ledger,
		pending:     d.Pending,
		links:       d.Links,
		transcriber: d.Transcriber,
		fetcher:     d.Fetcher,
		notifier:    d.Notifier,
		pipelines:   pipelines,
		cfg:         cfg,
		now:         d.Now,
		log:         d.Log,
	}
}

// runExpense runs the pipeline for state.Domain and records its outcome.
func (s *Service) runExpense(ctx context.Context, state *pipeline.PipelineState) error {
	start := time.Now()
	err := s.pipelines[state.Domain].Execute(ctx, state)

	outcome := state.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	metrics.ExtractionFinished(string(state.Domain), outcome, time.Since(start))
	if state.Outcome == pipeline.OutcomeDuplicate {
		metrics.Duplicate(metrics.DuplicateStaged)
	}
	return err
}

func (s *Service) reply(ctx context.Context, recipient, text string) {
	s.notifier.Notify(ctx, recipient, text)
}

// seen reports whether a delivery id was handled before. Empty ids are
// never deduplicated.
func (s *Service) seen(ch domain.Channel, id string) bool {
	if s.inbound == nil || id == "" {
		return false
	}
	return s.inbound.Seen(string(ch) + ":" + id)
}

// forget undoes seen for a delivery whose processing failed.
func (s *Service) forget(ch domain.Channel, id string) {
	if s.inbound == nil || id == "" {
		return
	}
	s.inbound.Forget(string(ch) + ":" + id)
}

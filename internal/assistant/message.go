package assistant

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/metrics"
	"github.com/dvloznov/expense-bot/internal/notify"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/router"
	"github.com/rs/zerolog"
)

// HandleMessage processes one chat message. The sender is resolved first,
// then redelivered messages are dropped silently; everything else gets a
// reply through the Notifier.
func (s *Service) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	user, err := s.identity.Resolve(ctx, msg.Channel, msg.SenderID, msg.DisplayName, msg.Handle)
	if err != nil {
		s.log.Error().Err(err).Str("sender", msg.SenderKey()).Msg("Failed to resolve user")
		s.reply(ctx, msg.SenderKey(), notify.GenericFailure)
		return
	}
	log := logger.ForUser(s.log, user.Key)

	if s.seen(msg.Channel, msg.MessageID) {
		metrics.MessageDeduplicated(string(msg.Channel))
		log.Debug().Str("channel", string(msg.Channel)).Str("message_id", msg.MessageID).Msg("Ignoring redelivered message")
		return
	}
	metrics.MessageReceived(string(msg.Channel), string(msg.Kind))

	switch msg.Kind {
	case domain.KindImage:
		s.handleImage(ctx, log, user, msg)
	case domain.KindVoice:
		s.handleVoice(ctx, log, user, msg)
	default:
		s.handleText(ctx, log, user, msg.Text)
	}
}

func (s *Service) handleImage(ctx context.Context, log zerolog.Logger, user domain.User, msg domain.InboundMessage) {
	if msg.Media == nil {
		s.reply(ctx, user.Key, notify.Error("No pude procesar la imagen"))
		return
	}
	if s.cfg.ProgressReplies {
		s.reply(ctx, user.Key, notify.Analyzing)
	}

	state := &pipeline.PipelineState{
		UserKey:  user.Key,
		Domain:   extraction.DomainReceiptPhoto,
		Media:    msg.Media,
		MIMEType: msg.Media.MIMEType,
	}
	err := s.runExpense(ctx, state)
	s.reply(ctx, user.Key, s.expenseReply(log, state, err))
}

func (s *Service) handleVoice(ctx context.Context, log zerolog.Logger, user domain.User, msg domain.InboundMessage) {
	if s.transcriber == nil || s.fetcher == nil || msg.Media == nil {
		s.reply(ctx, user.Key, notify.VoiceFailed)
		return
	}
	if s.cfg.ProgressReplies {
		s.reply(ctx, user.Key, notify.Listening)
	}

	audio, mimeType, err := s.fetcher.FetchMedia(ctx, *msg.Media)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download voice note")
		s.reply(ctx, user.Key, notify.GenericFailure)
		return
	}
	if mimeType == "" {
		mimeType = msg.Media.MIMEType
	}

	text, err := s.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		log.Error().Err(err).Msg("Transcription failed")
		s.reply(ctx, user.Key, notify.GenericFailure)
		return
	}
	if text == "" {
		s.reply(ctx, user.Key, notify.VoiceFailed)
		return
	}

	s.reply(ctx, user.Key, notify.Transcript(text))
	s.handleText(ctx, log, user, text)
}

func (s *Service) handleText(ctx context.Context, log zerolog.Logger, user domain.User, text string) {
	action := router.Route(text, s.pending.Has(user.Key))
	s.reply(ctx, user.Key, s.dispatch(ctx, log, user, text, action))
}

// dispatch executes action and returns the reply text.
func (s *Service) dispatch(ctx context.Context, log zerolog.Logger, user domain.User, text string, action router.Action) string {
	metrics.CommandProcessed(action.Kind.String())

	switch action.Kind {
	case router.ConfirmPendingDuplicate:
		saved, found, err := s.pending.Confirm(ctx, user.Key)
		if !found {
			// Expired between routing and confirming.
			return s.dispatch(ctx, log, user, text, router.Route(text, false))
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to replace duplicate")
			return notify.GenericFailure
		}
		metrics.Duplicate(metrics.DuplicateConfirmed)
		return notify.Replaced(*saved)

	case router.CancelPendingDuplicate:
		if !s.pending.Cancel(user.Key) {
			return s.dispatch(ctx, log, user, text, router.Route(text, false))
		}
		metrics.Duplicate(metrics.DuplicateCancelled)
		return notify.Cancelled

	case router.ShowHelp:
		return notify.Help

	case router.LinkAccountRequest:
		code, err := s.links.Issue(ctx, user.Key)
		if err != nil {
			log.Error().Err(err).Msg("Failed to issue link code")
			return notify.GenericFailure
		}
		return notify.LinkCode(code, s.cfg.DashboardURL, s.links.TTL())

	case router.MonthlySummary:
		expenses, err := s.ledger.MonthExpenses(ctx, user.Key, s.now())
		if err != nil {
			log.Error().Err(err).Msg("Failed to load monthly expenses")
			return notify.GenericFailure
		}
		return notify.MonthlySummary(expenses)

	case router.CategoryBreakdown:
		expenses, err := s.ledger.MonthExpenses(ctx, user.Key, s.now())
		if err != nil {
			log.Error().Err(err).Msg("Failed to load monthly expenses")
			return notify.GenericFailure
		}
		var cur domain.Currency
		if totals := ledger.CurrencyTotals(expenses); len(totals) == 1 {
			cur = totals[0].Currency
		}
		return notify.CategoryBreakdown(ledger.CategoryTotals(expenses), cur)

	case router.DeleteLast:
		deleted, err := s.ledger.DeleteLast(ctx, user.Key)
		if err != nil {
			log.Error().Err(err).Msg("Failed to delete last expense")
			return notify.GenericFailure
		}
		if deleted == nil {
			return notify.Empty(notify.EmptyDelete)
		}
		return notify.Deleted(*deleted)

	case router.BankSetupInstructions:
		addr := s.identity.BankAddress(user)
		if addr == "" {
			return notify.BankUnavailable
		}
		return notify.BankSetup(addr)

	case router.ChangeCurrency:
		before, err := s.ledger.ChangeLastCurrency(ctx, user.Key, action.Currency)
		if err != nil {
			log.Error().Err(err).Msg("Failed to change currency")
			return notify.GenericFailure
		}
		if before == nil {
			return notify.Empty(notify.EmptyModify)
		}
		return notify.CurrencyChanged(*before, action.Currency)

	case router.ExtractAsExpense:
		state := &pipeline.PipelineState{
			UserKey: user.Key,
			Domain:  extraction.DomainChatFreeform,
			Text:    action.Text,
		}
		err := s.runExpense(ctx, state)
		return s.expenseReply(log, state, err)

	default:
		log.Error().Str("action", fmt.Sprint(action.Kind)).Msg("Unhandled action")
		return notify.GenericFailure
	}
}

// expenseReply converts a chat or receipt pipeline result into a reply.
func (s *Service) expenseReply(log zerolog.Logger, state *pipeline.PipelineState, err error) string {
	if err != nil {
		log.Error().Err(err).Str("domain", string(state.Domain)).Msg("Expense pipeline failed")
		return notify.GenericFailure
	}

	switch state.Outcome {
	case pipeline.OutcomeSaved:
		return notify.Success(*state.Saved)
	case pipeline.OutcomeDuplicate:
		return notify.Duplicate(state.Candidate)
	case pipeline.OutcomeRejected:
		if state.Domain == extraction.DomainReceiptPhoto && state.Reason != "" {
			return notify.Error(state.Reason)
		}
		return notify.NotUnderstood
	default:
		return notify.GenericFailure
	}
}

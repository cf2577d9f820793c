package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/metrics"
	"github.com/dvloznov/expense-bot/internal/notify"
	"github.com/dvloznov/expense-bot/internal/pipeline"
)

// BankEmail is a forwarded bank notification as received from the inbound
// mail webhook.
type BankEmail struct {
	Sender    string
	From      string
	Subject   string
	Body      string
	Recipient string
	Token     string
	MessageID string
}

// EmailStatus is the result of HandleBankEmail.
type EmailStatus string

const (
	// EmailSkipped means the email is not from a supported bank.
	EmailSkipped EmailStatus = "skipped"
	// EmailNoUser means no user matches the recipient or sender.
	EmailNoUser EmailStatus = "no_user"
	// EmailRedelivered means the same delivery was already handled.
	EmailRedelivered EmailStatus = "already_processed"
	// EmailNotTransaction means the email holds no expense.
	EmailNotTransaction EmailStatus = "not_transaction"
	EmailSaved          EmailStatus = "saved"
	EmailDuplicate      EmailStatus = "duplicate"
	EmailFailed         EmailStatus = "failed"
)

// HandleBankEmail registers the expense described by a bank email.
// EmailSaved, EmailDuplicate and a pipeline EmailFailed send a reply to the
// owner's chat. A failed delivery is not remembered, so the sender's retry is
// processed again.
func (s *Service) HandleBankEmail(ctx context.Context, email BankEmail) (EmailStatus, error) {
	status, err := s.handleBankEmail(ctx, email)
	metrics.EmailProcessed(string(status))
	return status, err
}

func (s *Service) handleBankEmail(ctx context.Context, email BankEmail) (EmailStatus, error) {
	sender := email.Sender
	if sender == "" {
		sender = email.From
	}
	if !s.fromBank(sender, email.Subject) {
		s.log.Debug().Str("sender", sender).Str("subject", email.Subject).Msg("Skipping non-bank email")
		return EmailSkipped, nil
	}

	user, err := s.identity.ResolveEmailRecipient(ctx, email.Recipient, sender)
	if errors.Is(err, domain.ErrNoMatchingUser) {
		s.log.Warn().Str("recipient", email.Recipient).Str("sender", sender).Msg("No user for bank email")
		return EmailNoUser, nil
	}
	if err != nil {
		return EmailFailed, fmt.Errorf("HandleBankEmail: %w", err)
	}
	log := logger.ForUser(s.log, user.Key)

	deliveryID := email.MessageID
	if deliveryID == "" {
		deliveryID = email.Token
	}
	if s.seen(domain.ChannelEmail, deliveryID) {
		log.Debug().Str("delivery_id", deliveryID).Msg("Ignoring redelivered bank email")
		return EmailRedelivered, nil
	}

	state := &pipeline.PipelineState{
		UserKey: user.Key,
		Domain:  extraction.DomainBankEmail,
		Text:    fmt.Sprintf("Asunto: %s\n\nCuerpo:\n%s", email.Subject, email.Body),
	}
	if err := s.runExpense(ctx, state); err != nil {
		log.Error().Err(err).Msg("Bank email pipeline failed")
		s.forget(domain.ChannelEmail, deliveryID)
		s.reply(ctx, user.Key, notify.GenericFailure)
		return EmailFailed, fmt.Errorf("HandleBankEmail: %w", err)
	}

	switch state.Outcome {
	case pipeline.OutcomeSaved:
		s.reply(ctx, user.Key, notify.BankSuccess(*state.Saved, s.cfg.BankName))
		return EmailSaved, nil
	case pipeline.OutcomeDuplicate:
		s.reply(ctx, user.Key, notify.Duplicate(state.Candidate))
		return EmailDuplicate, nil
	default:
		log.Info().Str("reason", state.Reason).Msg("Bank email is not a transaction")
		return EmailNotTransaction, nil
	}
}

func (s *Service) fromBank(sender, subject string) bool {
	sender = strings.ToLower(sender)
	subject = strings.ToLower(subject)
	for _, kw := range s.cfg.SenderKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(sender, kw) || strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

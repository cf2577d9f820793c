package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/gcsarchive"
	"github.com/dvloznov/expense-bot/internal/normalize"
	"github.com/spf13/cobra"
)

func extractCmd() *cobra.Command {
	var (
		domainFlag   string
		currencyFlag string
	)

	cmd := &cobra.Command{
		Use:   "extract <file|gs://bucket/object>",
		Short: "Run extraction on a local file or archived receipt without saving anything",
		Long: `Run extraction and normalization on a text file, an email body or a receipt
image and print the resulting expense candidate as JSON. Nothing is stored.

The domain is guessed from the file type (images are receipts, everything
else is free-form chat text) unless --domain is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source := args[0]

			var hint *domain.Currency
			if currencyFlag != "" {
				c, ok := domain.ParseCurrency(currencyFlag)
				if !ok {
					return fmt.Errorf("unsupported currency %q", currencyFlag)
				}
				hint = &c
			}

			var (
				data []byte
				err  error
			)
			if strings.HasPrefix(source, "gs://") {
				gcs, gerr := gcsarchive.NewGCS(ctx)
				if gerr != nil {
					return gerr
				}
				defer gcs.Close()
				data, err = gcsarchive.FetchFromGCS(ctx, gcs, source)
			} else {
				data, err = os.ReadFile(source)
			}
			if err != nil {
				return err
			}

			mimeType := detectMIME(filenameOf(source), data)
			d, err := domainFor(mimeType, domainFlag)
			if err != nil {
				return err
			}

			in := extraction.TextInput(string(data), hint)
			if d == extraction.DomainReceiptPhoto {
				in = extraction.ImageInput(data, mimeType, hint)
			}

			client, err := extraction.NewClient(ctx, cfg.Gemini.APIKey)
			if err != nil {
				return err
			}
			extractor := extraction.NewGemini(client.Models, cfg.Gemini.Model, cfg.Extraction.Timeout, log)

			log.Info().Str("source", source).Str("domain", string(d)).Str("mime_type", mimeType).Msg("Running extraction")
			out := extractor.Extract(ctx, in, d)
			return writeOutcome(cmd.OutOrStdout(), out, hint, civil.DateOf(time.Now()))
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "extraction domain: chatFreeform, bankEmail or receiptPhoto")
	cmd.Flags().StringVar(&currencyFlag, "currency", "", "currency hint, e.g. PEN")
	return cmd
}

func filenameOf(source string) string {
	if strings.HasPrefix(source, "gs://") {
		return gcsarchive.FilenameFromURI(source)
	}
	return filepath.Base(source)
}

// detectMIME prefers the file extension and falls back to sniffing.
func detectMIME(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func domainFor(mimeType, flag string) (extraction.Domain, error) {
	switch extraction.Domain(flag) {
	case extraction.DomainChatFreeform, extraction.DomainBankEmail:
		return extraction.Domain(flag), nil
	case extraction.DomainReceiptPhoto:
		if !strings.HasPrefix(mimeType, "image/") {
			return "", fmt.Errorf("%s needs an image, got %s", flag, mimeType)
		}
		return extraction.DomainReceiptPhoto, nil
	case "":
		if strings.HasPrefix(mimeType, "image/") {
			return extraction.DomainReceiptPhoto, nil
		}
		return extraction.DomainChatFreeform, nil
	}
	return "", fmt.Errorf("unknown domain %q", flag)
}

type candidateOutput struct {
	Amount      string   `json:"amount"`
	Currency    string   `json:"currency"`
	Category    string   `json:"category"`
	Merchant    string   `json:"merchant"`
	Description *string  `json:"description,omitempty"`
	Date        string   `json:"date"`
	CardLast4   string   `json:"card_last4,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

type outcomeOutput struct {
	Outcome   string           `json:"outcome"`
	Reason    string           `json:"reason,omitempty"`
	Error     string           `json:"error,omitempty"`
	Raw       *candidateOutput `json:"raw,omitempty"`
	Candidate *candidateOutput `json:"candidate,omitempty"`
}

func toCandidateOutput(c domain.Candidate) *candidateOutput {
	return &candidateOutput{
		Amount:      c.Amount.StringFixed(2),
		Currency:    string(c.Currency),
		Category:    string(c.Category),
		Merchant:    c.Merchant,
		Description: c.Description,
		Date:        c.Date.String(),
		CardLast4:   c.CardLast4,
		Confidence:  c.Confidence,
	}
}

// writeOutcome prints the outcome as indented JSON. A successful candidate is
// shown both as returned by the model and after normalization.
func writeOutcome(w io.Writer, out extraction.Outcome, hint *domain.Currency, today civil.Date) error {
	var res outcomeOutput
	switch o := out.(type) {
	case extraction.Success:
		res.Outcome = "success"
		res.Raw = toCandidateOutput(o.Candidate)
		res.Candidate = toCandidateOutput(normalize.Normalize(o.Candidate, hint, today))
	case extraction.Rejected:
		res.Outcome = "rejected"
		res.Reason = o.Reason
	case extraction.AdapterFailure:
		res.Outcome = "failure"
		res.Error = o.Err.Error()
	default:
		return fmt.Errorf("unexpected outcome %T", out)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

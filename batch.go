package badass

import (
	"context"
	"fmt"
	"os"

	"github.com/moriyoshi/badass-mailer/draft"
	"github.com/moriyoshi/badass-mailer/types"
	"github.com/moriyoshi/badass-mailer/validator"
)

// FileBatch reads the mailing list and the message body from disk and
// drafts the message on every call to Batch.
type FileBatch struct {
	Sender          string
	Subject         string
	BodyPath        string
	MailingListPath string
	Attachments     []string
	Builder         *draft.Builder
}

func (b FileBatch) Batch(ctx context.Context) (types.MailingList, types.EnvelopeSource, error) {
	recipients, err := types.ParseMailingListFile(b.MailingListPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read mailing list: %w", err)
	}
	sender, err := validator.ValidateEmail(b.Sender)
	if err != nil {
		return nil, nil, err
	}
	body, err := os.ReadFile(b.BodyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read email content: %w", err)
	}
	attachments, err := validator.ValidateFilepaths(b.Attachments)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := b.Builder.Draft(sender, b.Subject, string(body), attachments)
	if err != nil {
		return nil, nil, err
	}
	return recipients, tmpl, nil
}

// Freeze runs source once and returns a BatchSource that hands out that
// result on every later run.
func Freeze(ctx context.Context, source BatchSource) (StaticBatch, error) {
	recipients, envelopes, err := source.Batch(ctx)
	if err != nil {
		return StaticBatch{}, err
	}
	return StaticBatch{Recipients: recipients, Source: envelopes}, nil
}

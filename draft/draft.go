// Package draft assembles the MIME message of a mailing run once and hands
// out per-recipient copies of it.
package draft

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-msgauth/dkim"

	"github.com/moriyoshi/badass-mailer/internal/bufio"
	"github.com/moriyoshi/badass-mailer/internal/logging"
	"github.com/moriyoshi/badass-mailer/internal/rfc5322"
	"github.com/moriyoshi/badass-mailer/types"
	"github.com/moriyoshi/badass-mailer/validator"
)

var (
	ErrEmptyRecipient   = errors.New("recipient must not be empty")
	ErrInvalidRecipient = errors.New("recipient must not contain line breaks")
)

// AttachmentReadError is returned when an attachment that passed validation
// can no longer be read.
type AttachmentReadError struct {
	Path string
	Err  error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("failed to read attachment %s: %v", e.Path, e.Err)
}

func (e *AttachmentReadError) Unwrap() error {
	return e.Err
}

type Attachment struct {
	// Filename is the path exactly as it was given, not its base name.
	Filename string
	Payload  []byte
}

type Builder struct {
	nowGetter       func() time.Time
	boundary        string
	dkimSignOptions *dkim.SignOptions
	logger          *slog.Logger
}

type BuilderOptionFunc func(*Builder) (*Builder, error)

func WithNowGetter(fn func() time.Time) BuilderOptionFunc {
	return func(b *Builder) (*Builder, error) {
		b.nowGetter = fn
		return b, nil
	}
}

// WithBoundary fixes the multipart boundary instead of a random one.
func WithBoundary(boundary string) BuilderOptionFunc {
	return func(b *Builder) (*Builder, error) {
		if err := multipart.NewWriter(io.Discard).SetBoundary(boundary); err != nil {
			return nil, err
		}
		b.boundary = boundary
		return b, nil
	}
}

// WithDKIMSignOptions makes every envelope carry a DKIM-Signature header.
func WithDKIMSignOptions(options *dkim.SignOptions) BuilderOptionFunc {
	return func(b *Builder) (*Builder, error) {
		b.dkimSignOptions = options
		return b, nil
	}
}

func WithLogger(logger *slog.Logger) BuilderOptionFunc {
	return func(b *Builder) (*Builder, error) {
		b.logger = logging.OrDiscard(logger)
		return b, nil
	}
}

func NewBuilder(options ...BuilderOptionFunc) (*Builder, error) {
	b := &Builder{
		nowGetter: time.Now,
		logger:    logging.Discard(),
	}
	for _, option := range options {
		var err error
		b, err = option(b)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func writeHeader(w io.Writer, name, value string) error {
	_, err := fmt.Fprintf(w, "%s: %s\r\n", name, value)
	return err
}

const base64LineLength = 76

type lineBreaker struct {
	w   io.Writer
	col int
}

func (lb *lineBreaker) Write(b []byte) (int, error) {
	n := 0
	for len(b) > 0 {
		if lb.col == base64LineLength {
			if _, err := lb.w.Write([]byte{'\r', '\n'}); err != nil {
				return n, err
			}
			lb.col = 0
		}
		c := min(base64LineLength-lb.col, len(b))
		m, err := lb.w.Write(b[:c])
		n += m
		lb.col += m
		if err != nil {
			return n, err
		}
		b = b[c:]
	}
	return n, nil
}

func writeTextPart(mw *multipart.Writer, body string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", mime.FormatMediaType("text/plain", map[string]string{"charset": "utf-8"}))
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	qw := quotedprintable.NewWriter(pw)
	if _, err := io.WriteString(qw, body); err != nil {
		return err
	}
	return qw.Close()
}

func writeAttachmentPart(mw *multipart.Writer, a Attachment) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	enc := base64.NewEncoder(base64.StdEncoding, &lineBreaker{w: pw})
	if _, err := enc.Write(a.Payload); err != nil {
		return err
	}
	return enc.Close()
}

func readAttachments(paths []validator.ExistingPath) ([]Attachment, error) {
	attachments := make([]Attachment, 0, len(paths))
	for _, p := range paths {
		payload, err := os.ReadFile(string(p))
		if err != nil {
			return nil, &AttachmentReadError{Path: string(p), Err: err}
		}
		attachments = append(attachments, Attachment{Filename: string(p), Payload: payload})
	}
	return attachments, nil
}

// Draft assembles the message shared by every recipient of a run. The
// returned Template carries no To header; Envelope adds one per recipient.
func (b *Builder) Draft(sender validator.EmailAddress, subject, body string, attachments []validator.ExistingPath) (*Template, error) {
	logger := b.logger.With(slog.String("sender", sender.String()), slog.String("subject", subject))

	parts, err := readAttachments(attachments)
	if err != nil {
		return nil, err
	}

	now := b.nowGetter()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if b.boundary != "" {
		if err := mw.SetBoundary(b.boundary); err != nil {
			return nil, err
		}
	}
	headers := [][2]string{
		{"Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mw.Boundary()})},
		{"MIME-Version", "1.0"},
		{"From", sender.String()},
		{"Date", now.Format(time.RFC1123Z)},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
	}
	for _, h := range headers {
		if err := writeHeader(&buf, h[0], h[1]); err != nil {
			return nil, err
		}
	}
	buf.WriteString("\r\n")
	if err := writeTextPart(mw, body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	for _, a := range parts {
		logger.Debug("attaching file", slog.String("path", a.Filename), slog.Int("size", len(a.Payload)))
		if err := writeAttachmentPart(mw, a); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", a.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var store rfc5322.Store
	if err := rfc5322.Scan(bufio.NewBytesReader(buf.Bytes()), &store); err != nil {
		return nil, fmt.Errorf("failed to record drafted message: %w", err)
	}

	t := &Template{
		sender:          sender,
		subject:         subject,
		body:            body,
		attachments:     parts,
		created:         now,
		boundary:        mw.Boundary(),
		store:           store,
		size:            buf.Len(),
		dkimSignOptions: b.dkimSignOptions,
	}
	logger.Info("message drafted", slog.Int("parts", t.Parts()), slog.Int("size", t.size))
	return t, nil
}

// Template is an assembled message minus its recipient. It is never
// modified after Draft returns, so it may be shared freely.
type Template struct {
	sender          validator.EmailAddress
	subject         string
	body            string
	attachments     []Attachment
	created         time.Time
	boundary        string
	store           rfc5322.Store
	size            int
	dkimSignOptions *dkim.SignOptions
}

func (t *Template) Sender() string {
	return t.sender.String()
}

func (t *Template) Subject() string {
	return t.subject
}

func (t *Template) Body() string {
	return t.body
}

func (t *Template) Created() time.Time {
	return t.created
}

func (t *Template) Boundary() string {
	return t.boundary
}

func (t *Template) Attachments() []Attachment {
	return append([]Attachment(nil), t.attachments...)
}

// Parts is the number of MIME parts: the text part plus one per attachment.
func (t *Template) Parts() int {
	return 1 + len(t.attachments)
}

var toB = []byte("To")

// Envelope renders the message for recipient. Any To header is dropped and
// exactly one, holding recipient, is written in front of the others.
func (t *Template) Envelope(recipient string) (types.Mail, error) {
	if recipient == "" {
		return types.Mail{}, ErrEmptyRecipient
	}
	if strings.ContainsAny(recipient, "\r\n") {
		return types.Mail{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}

	var buf bytes.Buffer
	buf.Grow(t.size + len(recipient) + 8)
	bl := &rfc5322.Builder{Writer: &buf}
	if err := bl.HandleHeaderLine([][]byte{[]byte("To: " + recipient)}); err != nil {
		return types.Mail{}, err
	}
	err := t.store.Replay(rfc5322.HandlerFromFunctions(
		bl.HandleStraggler,
		func(chunks [][]byte) error {
			if name, ok := rfc5322.HeaderName(chunks); ok && bytes.EqualFold(name, toB) {
				return nil
			}
			return bl.HandleHeaderLine(chunks)
		},
		bl.HandleBody,
	))
	if err != nil {
		return types.Mail{}, err
	}

	data := buf.Bytes()
	if t.dkimSignOptions != nil {
		var signed bytes.Buffer
		if err := dkim.Sign(&signed, bytes.NewReader(data), t.dkimSignOptions); err != nil {
			return types.Mail{}, fmt.Errorf("failed to sign message for %s: %w", recipient, err)
		}
		data = signed.Bytes()
	}
	return types.NewMail(t.sender.String(), recipient, data), nil
}

var _ types.EnvelopeSource = (*Template)(nil)

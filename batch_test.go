package badass

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/badass-mailer/draft"
	"github.com/moriyoshi/badass-mailer/validator"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if !assert.NoError(t, os.WriteFile(p, []byte(content), 0o644)) {
		t.FailNow()
	}
	return p
}

func newFileBatch(t *testing.T) (FileBatch, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := draft.NewBuilder()
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return FileBatch{
		Sender:          "a@b.co",
		Subject:         "Daily report",
		BodyPath:        writeFile(t, dir, "body.txt", "hello"),
		MailingListPath: writeFile(t, dir, "list.txt", "x@y.com\nz@y.com\n"),
		Attachments:     []string{writeFile(t, dir, "report.csv", "a,b\n1,2\n")},
		Builder:         b,
	}, dir
}

func TestFileBatch(t *testing.T) {
	fb, _ := newFileBatch(t)
	recipients, source, err := fb.Batch(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, []string{"x@y.com", "z@y.com"}, []string(recipients))
	assert.Equal(t, "a@b.co", source.Sender())
	tmpl, ok := source.(*draft.Template)
	if assert.True(t, ok) {
		assert.Equal(t, "hello", tmpl.Body())
		assert.Equal(t, 2, tmpl.Parts())
	}
}

func TestFileBatchInvalidSender(t *testing.T) {
	fb, _ := newFileBatch(t)
	fb.Sender = "not-an-address"
	_, _, err := fb.Batch(context.Background())
	var iae *validator.InvalidAddressError
	assert.True(t, errors.As(err, &iae))
}

func TestFileBatchMissingAttachments(t *testing.T) {
	fb, dir := newFileBatch(t)
	fb.Attachments = append(fb.Attachments, filepath.Join(dir, "nope.csv"), filepath.Join(dir, "gone.pdf"))
	_, _, err := fb.Batch(context.Background())
	var mfe *validator.MissingFilesError
	if assert.True(t, errors.As(err, &mfe)) {
		assert.Len(t, mfe.Paths, 2)
	}
}

func TestFileBatchMissingMailingList(t *testing.T) {
	fb, dir := newFileBatch(t)
	fb.MailingListPath = filepath.Join(dir, "nope.txt")
	_, _, err := fb.Batch(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFreeze(t *testing.T) {
	fb, dir := newFileBatch(t)
	frozen, err := Freeze(context.Background(), fb)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	writeFile(t, dir, "list.txt", "w@y.com\n")
	recipients, _, err := frozen.Batch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"x@y.com", "z@y.com"}, []string(recipients))

	recipients, _, err = fb.Batch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"w@y.com"}, []string(recipients))
}

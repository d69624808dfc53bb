package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	badass "github.com/moriyoshi/badass-mailer"
)

const sample = `
email:
  sender: ${env.BADASS_TEST_SENDER}
  subject: Daily report
  mailing_list: list.txt
  email_content: ${env.BADASS_TEST_UNSET:-body.txt}
  attachments:
    - a.csv
    - ${env.BADASS_TEST_DIR}/b.csv
server:
  hostname: smtp.example.com
schedule:
  time: "08:30"
  rebuild: true
delivery:
  on_error: continue
`

func TestLoad(t *testing.T) {
	t.Setenv("BADASS_TEST_SENDER", "a@b.co")
	t.Setenv("BADASS_TEST_DIR", "/data")
	cfg, err := Load([]byte(sample))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "a@b.co", cfg.Email.Sender)
	assert.Equal(t, "body.txt", cfg.Email.EmailContent)
	assert.Equal(t, []string{"a.csv", "/data/b.csv"}, cfg.Email.Attachments)
	assert.Equal(t, 25, cfg.Server.PortNumber)
	assert.Equal(t, 2*time.Second, cfg.Server.ConnTimeout)
	assert.Equal(t, badass.ContinueOnError, cfg.Delivery.OnError)
	assert.True(t, cfg.Schedule.Rebuild)
	assert.NoError(t, cfg.Validate())

	hour, minute, err := cfg.Schedule.TimeOfDay()
	assert.NoError(t, err)
	assert.Equal(t, 8, hour)
	assert.Equal(t, 30, minute)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	cfg, err := Load([]byte(`
server:
  hostname: smtp.example.com
  port_number: 2525
  conn_timeout: 5s
schedule_time: "23:59:00"
`))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, 2525, cfg.Server.PortNumber)
	assert.Equal(t, 5*time.Second, cfg.Server.ConnTimeout)
	assert.Equal(t, badass.AbortOnError, cfg.Delivery.OnError)
	hour, minute, err := cfg.Schedule.TimeOfDay()
	assert.NoError(t, err)
	assert.Equal(t, 23, hour)
	assert.Equal(t, 59, minute)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	_, err := Load([]byte("delivery:\n  on_error: retry\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load([]byte("server:\n  port_number: 70000\nschedule:\n  time: \"25:00\"\n"))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	err = cfg.Validate()
	if assert.Error(t, err) {
		for _, s := range []string{
			"email.sender is required",
			"email.mailing_list is required",
			"email.email_content is required",
			"server.hostname is required",
			"server.port_number 70000 is out of range",
			`schedule.time "25:00"`,
		} {
			assert.Contains(t, err.Error(), s)
		}
	}
}

func TestTimeOfDay(t *testing.T) {
	for _, s := range []string{"", "8", "08:30:15", "noon"} {
		_, _, err := ScheduleConfig{Time: s}.TimeOfDay()
		assert.Error(t, err, s)
	}
}

func TestLoadFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDKIMSignOptions(t *testing.T) {
	opts, err := DKIMConfig{}.SignOptions()
	assert.NoError(t, err)
	assert.Nil(t, opts)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	path := filepath.Join(t.TempDir(), "dkim.pem")
	if !assert.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600)) {
		t.FailNow()
	}
	opts, err = DKIMConfig{Domain: "b.co", Selector: "s1", PrivateKey: path}.SignOptions()
	if assert.NoError(t, err) {
		assert.Equal(t, "b.co", opts.Domain)
		assert.Equal(t, "s1", opts.Selector)
		assert.Equal(t, priv.Public(), opts.Signer.Public())
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	assert.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))
	_, err = DKIMConfig{Domain: "b.co", Selector: "s1", PrivateKey: garbage}.SignOptions()
	assert.Error(t, err)
}

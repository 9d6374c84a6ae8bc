package smtp

import (
	"bytes"
	"testing"

	"github.com/go-email-gate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func TestTLSPolicy(t *testing.T) {
	assert.Equal(t, mail.NoTLS, tlsPolicy("none"))
	assert.Equal(t, mail.TLSMandatory, tlsPolicy("mandatory"))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicy("opportunistic"))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicy(""))
}

func TestMessage_PlainText(t *testing.T) {
	m := NewMailer(&config.Config{SMTPFrom: "noreply@example.com", SMTPHost: "localhost", SMTPPort: 1025}).(*mailer)
	msg, err := m.message("user@example.com", "Your recovery code", "Code: ABCD-EFGH")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Subject: Your recovery code")
	assert.Contains(t, out, "<user@example.com>")
	assert.Contains(t, out, "ABCD-EFGH")
	assert.Contains(t, out, "text/plain")
}

func TestMessage_RejectsBadAddress(t *testing.T) {
	m := NewMailer(&config.Config{SMTPFrom: "noreply@example.com"}).(*mailer)
	_, err := m.message("not an address", "s", "b")
	assert.Error(t, err)
}

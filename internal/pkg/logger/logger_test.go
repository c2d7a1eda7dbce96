package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "ja***@example.com", RedactEmail("jane.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "*******1234", RedactPhone("+12025551234"))
	assert.Equal(t, "****", RedactPhone("123"))
}

func TestLogRedactsContactFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("prospect saved", "email", "jane.doe@example.com", "phone", "+12025551234", "name", "Jane Doe")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ja***@example.com", entry["email"])
	assert.Equal(t, "*******1234", entry["phone"])
	assert.Equal(t, "Jane Doe", entry["name"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLogRedactsEmbeddedEmails(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Warn("scrape snippet", "snippet", "reach me at dr.smith@clinic.org for referrals")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reach me at dr***@clinic.org for referrals", entry["snippet"])
}

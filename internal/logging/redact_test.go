package logging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeWith(t *testing.T, enc zapcore.Encoder, msg string, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Unix(0, 0),
		Message: msg,
	}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encodeWith(t, enc, "login", zap.String("password", "hunter2"), zap.String("route", "coder"))

	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"password":"[REDACTED]"`)
	assert.Contains(t, out, `"route":"coder"`)
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encodeWith(t, enc, "calling with Bearer abc123",
		zap.String("task", "deploy service using api_key=sk-live-999"))

	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "sk-live-999")
	assert.Contains(t, out, "deploy service using [REDACTED]")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	clone := enc.Clone()
	clone.AddString("token", "t0k3n")
	out := encodeWith(t, clone, "child")

	assert.NotContains(t, out, "t0k3n")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: false})
	require.NoError(t, err)

	out := encodeWith(t, enc, "raw", zap.String("password", "visible"))
	assert.Contains(t, out, "visible")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)

	_, err = NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{strings.Repeat("x", 201)}})
	assert.Error(t, err)
}

func TestRedactedString(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "test", RedactedString("api_key", "sk-1234567890abcdef"))

	tl.AssertField(t, "test", "api_key", "[REDACTED:19]")
}

func TestTaskText(t *testing.T) {
	short := TaskText("task", "fix the login bug")
	assert.Equal(t, "fix the login bug", short.String)

	long := TaskText("task", strings.Repeat("é", 200))
	assert.Equal(t, maxTaskTextLen+3, len([]rune(long.String)))
	assert.True(t, strings.HasSuffix(long.String, "..."))
}

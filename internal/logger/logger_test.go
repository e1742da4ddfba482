package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	log := New()
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NewWithLevel(tt.in).GetLevel())
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	assert.NotZero(t, buf.Len())
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"goal_id": "g-123",
		"action":  "match",
	})

	log.Info().Msg("test message")

	out := buf.String()
	assert.Contains(t, out, `"goal_id":"g-123"`)
	assert.Contains(t, out, `"action":"match"`)
}

func TestForGoal(t *testing.T) {
	buf := &bytes.Buffer{}

	log := ForGoal(NewWithWriter(buf), "run-1", "goal-9")
	log.Warn().Msg("failed")

	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
	assert.Contains(t, buf.String(), `"goal_id":"goal-9"`)
}

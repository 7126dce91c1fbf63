package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput, VerbosityInfo))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.True(t, ShouldLogTrace(3))
	assert.False(t, ShouldLogTrace(2))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithProject(ctx, "employees")
	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldRunID, "run-1", FieldProject, "employees"}, fields)
	assert.Equal(t, "run-1", RunIDFromContext(ctx))
}

func TestNop(t *testing.T) {
	assert.NotNil(t, Nop(nil))
	l := zap.NewExample().Sugar()
	assert.Same(t, l, Nop(l))
}

func TestMinimalEncoder(t *testing.T) {
	enc := newMinimalEncoder(false)
	ent := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Date(2024, 1, 2, 13, 4, 35, 0, time.UTC),
		LoggerName: "pattern",
		Message:    "ambiguous target",
	}

	buf, err := enc.EncodeEntry(ent, []zapcore.Field{
		zap.String(FieldTargetPath, "dept"),
		zap.Int(FieldCount, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, "13:04:35  WARN  pattern  ambiguous target  target_path=dept count=2\n", buf.String())
}

func TestMinimalEncoderInfoHasNoLevel(t *testing.T) {
	enc := newMinimalEncoder(false)
	ent := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Message: "schema inferred",
	}
	buf, err := enc.EncodeEntry(ent, nil)
	require.NoError(t, err)
	assert.Equal(t, "09:00:00  schema inferred\n", buf.String())
}

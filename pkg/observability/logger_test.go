package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camberhq/camber/pkg/contextkeys"
)

func parseLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("should be filtered")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	entry := parseLogLine(t, &buf)
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"org_id": 42,
		"action": "context.switch",
	}).Info("context asserted")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, float64(42), entry["org_id"])
	assert.Equal(t, "context.switch", entry["action"])
}

func TestLogger_WithTenant(t *testing.T) {
	t.Run("with association", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		assocID := int64(7)
		logger.WithTenant(3, &assocID).Info("scoped")

		entry := parseLogLine(t, &buf)
		assert.Equal(t, float64(3), entry["org_id"])
		assert.Equal(t, float64(7), entry["assoc_id"])
	})

	t.Run("org-wide scope omits assoc_id", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		logger.WithTenant(3, nil).Info("scoped")

		entry := parseLogLine(t, &buf)
		assert.Equal(t, float64(3), entry["org_id"])
		assert.NotContains(t, entry, "assoc_id")
	})
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(assert.AnError).Error("failed")
	entry := parseLogLine(t, &buf)
	assert.Equal(t, assert.AnError.Error(), entry["error"])

	// nil error is a no-op
	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-abc")
	ctx = contextkeys.WithUserID(ctx, "17")

	FromContext(ctx).Info("hello")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "req-abc", entry["request_id"])
	assert.Equal(t, "17", entry["user_id"])
}

func TestGetLogger_FallsBackToDefault(t *testing.T) {
	logger := GetLogger(context.Background())
	assert.NotNil(t, logger)
}

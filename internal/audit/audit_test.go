package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return NewLogger(zap.New(core)), logs
}

func TestLogger_RecordsOperationMetadata(t *testing.T) {
	auditor, logs := newObservedLogger()

	auditor.LogConfigure(ResourceWebhookConfig, "10.0.0.5", "req-1", "ok")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "CONFIGURE", fields["operation"])
	assert.Equal(t, "webhook_config", fields["resource"])
	assert.Equal(t, "10.0.0.5", fields["ip_address"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "ok", fields["outcome"])
	assert.NotEmpty(t, fields["timestamp"])
}

func TestLogger_LogToggle(t *testing.T) {
	auditor, logs := newObservedLogger()

	auditor.LogToggle(ResourceTranscriptionConfig, true, "10.0.0.5", "req-1", "ok")
	auditor.LogToggle(ResourceTranscriptionConfig, false, "10.0.0.5", "req-2", "ok")
	auditor.LogToggle(ResourceWebhookConfig, true, "10.0.0.5", "req-3", "rejected")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "ENABLE", entries[0].ContextMap()["operation"])
	assert.Equal(t, "DISABLE", entries[1].ContextMap()["operation"])
	assert.Equal(t, "rejected", entries[2].ContextMap()["outcome"])
}

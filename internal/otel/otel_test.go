package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ronappleton/teams-approval-bot/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestAttributes(t *testing.T) {
	t.Setenv("METRIC_SERVICE_ENV", "staging")
	t.Setenv("APP_VERSION", "")
	t.Setenv("GIT_SHA", "abc123")
	t.Setenv("HOSTNAME", "")

	attrs := Attributes("teams-approval-bot")
	assert.Contains(t, attrs, attribute.String("service.name", "teams-approval-bot"))
	assert.Contains(t, attrs, attribute.String("deployment.environment", "staging"))
	assert.Contains(t, attrs, attribute.String("service.version", "abc123"))
	assert.Len(t, attrs, 3)
}

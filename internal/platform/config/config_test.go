package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("SECURITY_CHAT_ID", "-100123")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, int64(-100123), cfg.Intake.SecurityChatID)
		assert.Equal(t, "sqlite", cfg.Storage.ResidentBackend)
		assert.Equal(t, "file", cfg.Storage.LedgerBackend)
		assert.Equal(t, 24*time.Hour, cfg.Intake.SessionIdleTTL)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.False(t, cfg.Server.IsProduction())
		assert.Empty(t, cfg.Server.InboundToken)
		assert.Equal(t, 5, cfg.Relay.FailureThreshold)
		assert.Equal(t, 30*time.Second, cfg.Relay.Cooldown)
	})

	t.Run("parses lists", func(t *testing.T) {
		t.Setenv("SECURITY_CHAT_ID", "-100123")
		t.Setenv("ALLOWED_REQUESTERS", "11, 22,,33")
		t.Setenv("KAFKA_BROKERS", "a:9092,b:9092, a:9092")
		t.Setenv("SECURITY_PHONES", "+380500000001 (section 1), +380950000002 (section 2)")
		t.Setenv("SECURITY_OPERATORS", "555,777")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []int64{11, 22, 33}, cfg.Intake.AllowedRequesters)
		assert.Equal(t, []int64{555, 777}, cfg.Intake.SecurityOperators)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Len(t, cfg.Intake.SecurityPhones, 2)
	})

	t.Run("requires security chat", func(t *testing.T) {
		t.Setenv("SECURITY_CHAT_ID", "")

		_, err := FromEnv()
		require.ErrorContains(t, err, "SECURITY_CHAT_ID is required")
	})

	t.Run("requires correlation secret in production", func(t *testing.T) {
		t.Setenv("SECURITY_CHAT_ID", "-1")
		t.Setenv("ENV", "production")
		t.Setenv("CORRELATION_SECRET", "")

		_, err := FromEnv()
		require.ErrorContains(t, err, "CORRELATION_SECRET is required in production")

		t.Setenv("CORRELATION_SECRET", "s3cret")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.Server.IsProduction())
	})

	t.Run("requires database url for postgres backends", func(t *testing.T) {
		t.Setenv("SECURITY_CHAT_ID", "-1")
		t.Setenv("LEDGER_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")

		_, err := FromEnv()
		require.ErrorContains(t, err, "DATABASE_URL is required for LEDGER_BACKEND=postgres")
	})

	t.Run("collects malformed values", func(t *testing.T) {
		t.Setenv("SECURITY_CHAT_ID", "-1")
		t.Setenv("SESSION_IDLE_TTL", "forever")
		t.Setenv("ALLOWED_REQUESTERS", "abc")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SESSION_IDLE_TTL must be a duration")
		assert.Contains(t, err.Error(), "ALLOWED_REQUESTERS contains non-integer")
	})
}

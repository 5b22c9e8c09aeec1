package config

import (
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:5001", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, []string{"DE"}, cfg.Providers.DomesticPrefixes)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 20, cfg.Snapshot.BatchSize)
	assert.Equal(t, 4*time.Minute, cfg.Snapshot.Deadline)
	assert.Equal(t, 30*24*time.Hour, cfg.Snapshot.RecentWindow)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("CACHE_TTL", "90")
	t.Setenv("SNAPSHOT_DEADLINE", "2m30s")
	t.Setenv("DOMESTIC_ISIN_PREFIXES", "DE, AT ,")
	t.Setenv("BATCH_MAX_CONCURRENT", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 150*time.Second, cfg.Snapshot.Deadline)
	assert.Equal(t, []string{"DE", "AT"}, cfg.Providers.DomesticPrefixes)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrent)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("BATCH_MAX_CONCURRENT", "ten")
	t.Setenv("CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_MAX_CONCURRENT")
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_EncryptedSecrets(t *testing.T) {
	var key fernet.Key
	require.NoError(t, key.Generate())
	encoded := key.Encode()

	t.Run("decrypts fernet values", func(t *testing.T) {
		secret, err := EncryptSecret("av-demo-key", encoded)
		require.NoError(t, err)

		t.Setenv("CONFIG_ENCRYPTION_KEY", encoded)
		t.Setenv("ALPHAVANTAGE_API_KEY", secret)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "av-demo-key", cfg.Providers.AlphaVantageKey)
	})

	t.Run("plain values pass through", func(t *testing.T) {
		t.Setenv("ALPHAVANTAGE_API_KEY", "plain")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "plain", cfg.Providers.AlphaVantageKey)
	})

	t.Run("missing key is an error", func(t *testing.T) {
		secret, err := EncryptSecret("x", encoded)
		require.NoError(t, err)

		t.Setenv("CONFIG_ENCRYPTION_KEY", "")
		t.Setenv("BINANCE_API_KEY", secret)

		_, err = Load()
		assert.ErrorIs(t, err, ErrMissingEncryptionKey)
	})

	t.Run("wrong key is an error", func(t *testing.T) {
		var other fernet.Key
		require.NoError(t, other.Generate())
		secret, err := EncryptSecret("x", other.Encode())
		require.NoError(t, err)

		t.Setenv("CONFIG_ENCRYPTION_KEY", encoded)
		t.Setenv("BINANCE_API_KEY", secret)

		_, err = Load()
		assert.Error(t, err)
	})
}

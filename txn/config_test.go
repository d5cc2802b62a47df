package txn

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultValidates(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
	}{
		{"nil factory", WithGraphFactory(nil)},
		{"zero chain length", WithMaxChainLength(0)},
		{"zero timeout", WithTransactionTimeout(0)},
		{"zero sweep", WithSweepInterval(0)},
		{"zero multiplier", WithKeepTimedOutMultiplier(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig(tc.opt)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv(envMaxChainLength, "7")
	t.Setenv(envTransactionTimeoutMS, "1500")
	t.Setenv(envSweepIntervalMS, "250")
	t.Setenv(envKeepTimedOutMultiplier, "4")

	cfg := LoadFromEnv()
	assert.Equal(t, 7, cfg.MaxChainLength)
	assert.Equal(t, 1500*time.Millisecond, cfg.TransactionTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	assert.Equal(t, 4, cfg.KeepTimedOutMultiplier)
}

func TestConfig_LoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "maxChainLength: 9\ntransactionTimeout: 45s\nsweepInterval: 2s\nkeepTimedOutMultiplier: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFromYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxChainLength)
	assert.Equal(t, 45*time.Second, cfg.TransactionTimeout)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval)
	assert.Equal(t, 3, cfg.KeepTimedOutMultiplier)
}

func TestConfig_LoadFromYAMLMissingFile(t *testing.T) {
	_, err := LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

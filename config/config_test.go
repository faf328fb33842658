package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
chains:
  - name: base
    chain_id: 8453
    token_symbol: USDC
    token_decimals: 6
    native_symbol: ETH
    native_decimals: 18
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Treasury.Timelock)
	assert.Equal(t, "100", cfg.Treasury.Reserve)
	assert.Equal(t, 30, cfg.Treasury.MinReasonLength)
	assert.Equal(t, 20, cfg.Treasury.MinRejectReasonLength)
	assert.Equal(t, 2, cfg.Executor.Workers)
	assert.Equal(t, 45*time.Second, cfg.Executor.BroadcastTimeout)
	assert.Equal(t, []string{"USD", "USDC", "USDT"}, cfg.Rates.Pegged)
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, int64(8453), cfg.Chains[0].ChainID)
	assert.Equal(t, int32(6), cfg.Chains[0].TokenDecimals)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
treasury:
  timelock: 48h
  reserve: "250.5"
  super_admins: [admin-1, admin-2]
executor:
  workers: 4
  broadcast_timeout: 1m
`)

	t.Setenv("TREASURY_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Treasury.Timelock)
	assert.Equal(t, "250.5", cfg.Treasury.Reserve)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.Treasury.SuperAdmins)
	assert.Equal(t, 4, cfg.Executor.Workers)
	assert.Equal(t, time.Minute, cfg.Executor.BroadcastTimeout)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoadRejectsDuplicateChains(t *testing.T) {
	path := writeConfig(t, `
chains:
  - name: base
    chain_id: 8453
  - name: base
    chain_id: 1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain name")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Treasury: TreasuryConfig{Timelock: time.Hour},
		Executor: ExecutorConfig{Workers: 0, BroadcastTimeout: time.Second},
		Timeouts: TimeoutConfig{Balance: time.Second, Rate: time.Second, Audit: time.Second},
	}
	require.Error(t, cfg.Validate())

	cfg.Executor.Workers = 1
	require.NoError(t, cfg.Validate())

	cfg.Timeouts.Audit = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeouts.audit")
	cfg.Timeouts.Audit = time.Second

	cfg.Chains = []ChainConfig{{Name: "a", ChainID: 1}, {Name: "b", ChainID: 1}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain id")

	cfg.Chains = []ChainConfig{{Name: "base", ChainID: 1}, {Name: "Base", ChainID: 2}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain name")
}

package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominant-strategies/go-mempool/cmd/options"
	"github.com/dominant-strategies/go-mempool/core"
	"github.com/dominant-strategies/go-mempool/core/feemarket"
)

// Verifies that a missing config file falls back to the built-in defaults.
func TestDefaultsWithoutConfigFile(t *testing.T) {
	// Clear viper instance to simulate a fresh start
	viper.Reset()
	viper.SetConfigFile(t.TempDir() + "/config.toml")
	viper.SetConfigType("toml")

	InitConfig()

	assert.Equal(t, core.DefaultConfig, PoolConfig())
	assert.Equal(t, feemarket.DefaultConfig, FeeMarketConfig())
	assert.Equal(t, core.DefaultPriorityConfig, PriorityConfig())
}

// Verifies that config file values override the defaults.
func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := dir + "/config.toml"
	content := "[txpool]\npricelimit = 42\nglobalslots = 128\n\n[feemarket]\nwindowsize = 16\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	viper.Reset()
	viper.SetConfigFile(file)
	viper.SetConfigType("toml")

	InitConfig()

	pool := PoolConfig()
	assert.Equal(t, uint64(42), pool.PriceLimit)
	assert.Equal(t, uint64(128), pool.GlobalSlots)
	// Untouched keys keep their defaults
	assert.Equal(t, core.DefaultConfig.PriceBump, pool.PriceBump)

	assert.Equal(t, 16, FeeMarketConfig().WindowSize)
}

// Verifies that the config file is saved or updated with the current config
// parameters, backing up the previous copy.
func TestSaveConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := dir + "/config.toml"

	viper.Reset()
	viper.SetConfigFile(file)
	viper.SetConfigType("toml")
	viper.Set(options.CONFIG_DIR, dir+"/")

	InitConfig()

	require.NoError(t, SaveConfig())
	assert.FileExists(t, file)

	// Saving again must keep a backup of the previous file
	require.NoError(t, SaveConfig())
	assert.FileExists(t, file+".bak")
}

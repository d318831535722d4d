package config

import (
	"errors"
	"io/fs"
	"math/big"
	"os"

	"github.com/spf13/viper"

	"github.com/dominant-strategies/go-mempool/cmd/options"
	"github.com/dominant-strategies/go-mempool/common/constants"
	"github.com/dominant-strategies/go-mempool/core"
	"github.com/dominant-strategies/go-mempool/core/feemarket"
	"github.com/dominant-strategies/go-mempool/log"
)

// InitConfig initializes the viper config instance ensuring that environment
// variables take precedence over config file parameters.
// Environment variables should be prefixed with the application name
// (e.g. GO_MEMPOOL_LOG_LEVEL).
// It panics if an error occurs while reading the config file.
func InitConfig() {
	setDefaults()

	// read in config file and merge with defaults
	log.Infof("Loading config from file: %s", viper.ConfigFileUsed())
	err := viper.ReadInConfig()
	if err != nil {
		// if error is type ConfigFileNotFoundError or fs.PathError, ignore error
		if _, ok := err.(*fs.PathError); ok || errors.Is(err, viper.ConfigFileNotFoundError{}) {
			log.Warnf("Config file not found: %s", viper.ConfigFileUsed())
		} else {
			log.Errorf("Error reading config file: %s", err)
			// config file was found but another error was produced. Cannot continue
			panic(err)
		}
	}

	log.Infof("Loading config from environment variables with prefix: '%s_'", constants.ENV_PREFIX)
	viper.SetEnvPrefix(constants.ENV_PREFIX)
	viper.AutomaticEnv()
}

// setDefaults registers the default value for every config key so a bare
// install runs without a config file.
func setDefaults() {
	pool := core.DefaultConfig
	viper.SetDefault(options.POOL_PRICE_LIMIT, pool.PriceLimit)
	viper.SetDefault(options.POOL_PRICE_BUMP, pool.PriceBump)
	viper.SetDefault(options.POOL_MAX_TX_SIZE, pool.MaxTxSize)
	viper.SetDefault(options.POOL_MAX_TX_GAS, pool.MaxTxGas)
	viper.SetDefault(options.POOL_ACCOUNT_SLOTS, pool.AccountSlots)
	viper.SetDefault(options.POOL_GLOBAL_SLOTS, pool.GlobalSlots)
	viper.SetDefault(options.POOL_ACCOUNT_QUEUE, pool.AccountQueue)
	viper.SetDefault(options.POOL_GLOBAL_QUEUE, pool.GlobalQueue)
	viper.SetDefault(options.POOL_MAX_PER_SENDER, pool.MaxPerSender)
	viper.SetDefault(options.POOL_LIFETIME, pool.Lifetime)
	viper.SetDefault(options.POOL_SPAM_WINDOW, pool.SpamWindow)
	viper.SetDefault(options.POOL_SPAM_THRESHOLD, pool.SpamThreshold)
	viper.SetDefault(options.POOL_CONTIGUOUS, pool.RequireContiguous)

	fee := feemarket.DefaultConfig
	viper.SetDefault(options.FEE_WINDOW_SIZE, fee.WindowSize)
	viper.SetDefault(options.FEE_TARGET_UTILIZATION, fee.TargetUtilization)
	viper.SetDefault(options.FEE_MAX_CHANGE, fee.MaxChangeFraction)
	viper.SetDefault(options.FEE_MIN_BASE_FEE, fee.MinBaseFee.Uint64())
	viper.SetDefault(options.FEE_MAX_BASE_FEE, fee.MaxBaseFee.Uint64())
	viper.SetDefault(options.FEE_INITIAL_BASE_FEE, fee.InitialBaseFee.Uint64())

	priority := core.DefaultPriorityConfig
	viper.SetDefault(options.PRIORITY_TIP_WEIGHT, priority.TipWeight)
	viper.SetDefault(options.PRIORITY_SIZE_WEIGHT, priority.SizeWeight)
	viper.SetDefault(options.PRIORITY_AGE_WEIGHT, priority.AgeWeight)
}

// PoolConfig assembles the pool configuration from the loaded viper state.
func PoolConfig() core.Config {
	return core.Config{
		PriceLimit:        viper.GetUint64(options.POOL_PRICE_LIMIT),
		PriceBump:         viper.GetUint64(options.POOL_PRICE_BUMP),
		MaxTxSize:         viper.GetUint64(options.POOL_MAX_TX_SIZE),
		MaxTxGas:          viper.GetUint64(options.POOL_MAX_TX_GAS),
		AccountSlots:      viper.GetUint64(options.POOL_ACCOUNT_SLOTS),
		GlobalSlots:       viper.GetUint64(options.POOL_GLOBAL_SLOTS),
		AccountQueue:      viper.GetUint64(options.POOL_ACCOUNT_QUEUE),
		GlobalQueue:       viper.GetUint64(options.POOL_GLOBAL_QUEUE),
		MaxPerSender:      viper.GetUint64(options.POOL_MAX_PER_SENDER),
		Lifetime:          viper.GetDuration(options.POOL_LIFETIME),
		SpamWindow:        viper.GetDuration(options.POOL_SPAM_WINDOW),
		SpamThreshold:     viper.GetUint64(options.POOL_SPAM_THRESHOLD),
		RequireContiguous: viper.GetBool(options.POOL_CONTIGUOUS),
	}
}

// FeeMarketConfig assembles the fee market configuration from the loaded
// viper state.
func FeeMarketConfig() feemarket.Config {
	return feemarket.Config{
		WindowSize:        viper.GetInt(options.FEE_WINDOW_SIZE),
		TargetUtilization: viper.GetFloat64(options.FEE_TARGET_UTILIZATION),
		MaxChangeFraction: viper.GetFloat64(options.FEE_MAX_CHANGE),
		MinBaseFee:        new(big.Int).SetUint64(viper.GetUint64(options.FEE_MIN_BASE_FEE)),
		MaxBaseFee:        new(big.Int).SetUint64(viper.GetUint64(options.FEE_MAX_BASE_FEE)),
		InitialBaseFee:    new(big.Int).SetUint64(viper.GetUint64(options.FEE_INITIAL_BASE_FEE)),
	}
}

// PriorityConfig assembles the priority weights from the loaded viper state.
func PriorityConfig() core.PriorityConfig {
	return core.PriorityConfig{
		TipWeight:  viper.GetFloat64(options.PRIORITY_TIP_WEIGHT),
		SizeWeight: viper.GetFloat64(options.PRIORITY_SIZE_WEIGHT),
		AgeWeight:  viper.GetFloat64(options.PRIORITY_AGE_WEIGHT),
	}
}

// SaveConfig saves the config file with the current config parameters.
//
// If the config file does not exist, it creates it.
//
// If the config file exists, it creates a backup copy ending with .bak
// and overwrites the existing config file.
func SaveConfig() error {
	// check if config file exists
	configFile := viper.ConfigFileUsed()
	log.Debugf("saving/updating config file: %s", configFile)
	if _, err := os.Stat(configFile); err == nil {
		// config file exists, create backup copy
		err := os.Rename(configFile, configFile+".bak")
		if err != nil {
			return err
		}
	} else if os.IsNotExist(err) {
		// config file does not exist, create directory if it does not exist
		configDir := viper.GetString(options.CONFIG_DIR)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return err
		}
		if _, err := os.Create(configFile); err != nil {
			return err
		}
	} else {
		return err
	}

	// write config file
	return viper.WriteConfigAs(configFile)
}

package constants

const (
	APP_NAME = "go-mempool"
	// prefix used to read config parameters from environment variables
	ENV_PREFIX = "GO_MEMPOOL"
	// config file name
	CONFIG_FILE_NAME = "config.toml"
	// config file type
	CONFIG_FILE_TYPE = "toml"
)

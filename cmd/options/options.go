package options

// String names of every CLI option supported by go-mempool
const (
	CONFIG_DIR       = "config-dir"
	DATA_DIR         = "data-dir"
	LOG_LEVEL        = "log-level"
	SAVE_CONFIG_FILE = "save-config"
	METRICS_ADDR     = "metrics-addr"

	// Pool admission and capacity knobs
	POOL_PRICE_LIMIT    = "txpool.pricelimit"
	POOL_PRICE_BUMP     = "txpool.pricebump"
	POOL_MAX_TX_SIZE    = "txpool.maxtxsize"
	POOL_MAX_TX_GAS     = "txpool.maxtxgas"
	POOL_ACCOUNT_SLOTS  = "txpool.accountslots"
	POOL_GLOBAL_SLOTS   = "txpool.globalslots"
	POOL_ACCOUNT_QUEUE  = "txpool.accountqueue"
	POOL_GLOBAL_QUEUE   = "txpool.globalqueue"
	POOL_MAX_PER_SENDER = "txpool.maxpersender"
	POOL_LIFETIME       = "txpool.lifetime"
	POOL_SPAM_WINDOW    = "txpool.spamwindow"
	POOL_SPAM_THRESHOLD = "txpool.spamthreshold"
	POOL_CONTIGUOUS     = "txpool.requirecontiguous"

	// Fee market knobs
	FEE_WINDOW_SIZE        = "feemarket.windowsize"
	FEE_TARGET_UTILIZATION = "feemarket.targetutilization"
	FEE_MAX_CHANGE         = "feemarket.maxchangefraction"
	FEE_MIN_BASE_FEE       = "feemarket.minbasefee"
	FEE_MAX_BASE_FEE       = "feemarket.maxbasefee"
	FEE_INITIAL_BASE_FEE   = "feemarket.initialbasefee"

	// Priority scoring knobs
	PRIORITY_TIP_WEIGHT  = "priority.tipweight"
	PRIORITY_SIZE_WEIGHT = "priority.sizeweight"
	PRIORITY_AGE_WEIGHT  = "priority.ageweight"
)

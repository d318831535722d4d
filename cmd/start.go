package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dominant-strategies/go-mempool/cmd/options"
	"github.com/dominant-strategies/go-mempool/config"
	"github.com/dominant-strategies/go-mempool/core"
	"github.com/dominant-strategies/go-mempool/log"
	"github.com/dominant-strategies/go-mempool/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "starts the go-mempool daemon",
	Long: `starts the go-mempool daemon. The daemon runs a standalone transaction pool
backed by an in-memory account state, exposing prometheus metrics while it runs.
Wire a real state reader in embedding applications instead.`,
	RunE:                       runStart,
	SilenceUsage:               true,
	SuggestionsMinimumDistance: 2,
	Args:                       cobra.NoArgs,
	Example:                    `go-mempool start --log-level=debug`,
}

func init() {
	rootCmd.AddCommand(startCmd)
	// configure flag for the prometheus listen address
	startCmd.Flags().StringP(options.METRICS_ADDR, "m", "localhost:9090", "prometheus metrics listen address, empty disables"+generateEnvDoc(options.METRICS_ADDR))
	viper.BindPFlag(options.METRICS_ADDR, startCmd.Flags().Lookup(options.METRICS_ADDR))
}

func runStart(cmd *cobra.Command, args []string) error {
	log.Infof("Starting go-mempool daemon")

	if addr := viper.GetString(options.METRICS_ADDR); addr != "" {
		metrics.EnableMetrics()
		go metrics.StartProcessMetrics(addr)
	}

	state := core.NewMemoryState()
	pool := core.New(config.PoolConfig(), config.FeeMarketConfig(), state, core.NoopValidator{}, config.PriorityConfig(), log.Global())

	// wait for a SIGINT or SIGTERM signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Warnf("Received 'stop' signal, shutting down gracefully...")
	pool.Stop()
	return nil
}

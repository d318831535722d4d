// go-mempool is the standalone transaction pool daemon.
package main

import (
	"fmt"
	"os"

	"github.com/dominant-strategies/go-mempool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

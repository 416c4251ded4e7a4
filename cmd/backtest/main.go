// Command backtest runs the kernel against a config file: it loads each
// asset's feed, drives the event loop to the end of data, and prints the
// resulting account state per asset.
package main

import (
	"fmt"
	"os"

	"github.com/hftsim/backtest/cmd/backtest/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

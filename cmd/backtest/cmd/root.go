package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the backtest CLI's command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Deterministic event-driven backtesting kernel",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newGenFixtureCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kernel version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("backtest v0.1.0")
		},
	}
}

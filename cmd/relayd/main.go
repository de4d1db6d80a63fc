package main

import (
	"os"

	"github.com/grovetools/relay/cli"
	"github.com/grovetools/relay/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"relayd",
		"Session relay daemon between UI clients and the agent execution engine",
	)

	rootCmd.AddCommand(cmd.NewStartCmd())
	rootCmd.AddCommand(cmd.NewStopCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

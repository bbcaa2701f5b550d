package main

import (
	"os"

	"github.com/suda-labs/suda/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

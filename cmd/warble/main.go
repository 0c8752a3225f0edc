package main

import (
	"os"

	"github.com/warble-im/warble/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

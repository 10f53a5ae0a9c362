package main

import (
	"os"

	"github.com/canopy-network/canopy/lib/musig/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/rustyeddy/barsim/cmd/barsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

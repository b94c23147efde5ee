package main

import (
	"os"

	"github.com/rustyeddy/gridscalp/cmd/gridscalp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

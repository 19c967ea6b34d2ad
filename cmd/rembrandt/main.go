package main

import (
	"os"

	"github.com/grizzdank/rembrandt/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

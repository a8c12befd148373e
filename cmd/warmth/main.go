package main

import (
	"os"

	"github.com/relatia/warmth/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

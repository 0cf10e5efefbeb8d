package main

import (
	"os"

	"github.com/hookflow/hookflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/polyglotvid/lingoctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

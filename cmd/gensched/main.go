package main

import (
	"os"

	"github.com/watzon/gensched/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

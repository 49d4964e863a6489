package main

import (
	"fmt"
	"os"

	"github.com/danmuck/boardsync/internal/logging"
	"github.com/danmuck/boardsync/internal/observability"
)

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("boardctl")
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "boardctl: %v\n", err)
		os.Exit(1)
	}
}

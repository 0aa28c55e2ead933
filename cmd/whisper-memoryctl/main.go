package main

import (
	"os"

	"github.com/whisperengine-ai/whisperengine-sub002/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

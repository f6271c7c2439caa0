package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/skystation-io/skystation/cmd/skystation-agent/app"
)

func main() {
	if err := app.NewAgentCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"github.com/urfave/cli/v3"
)

// getCommands lists the lifecycle commands first, then the outbox operator tooling.
func getCommands(version string) []*cli.Command {
	return append(getSystemCommands(version), getOutboxCommands()...)
}

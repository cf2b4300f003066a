package main

import (
	"github.com/riverqueue/riverscript/cmd/riverscript/riverscriptcli"
)

func main() {
	cli := riverscriptcli.NewCLI()

	// Cobra will already print an error on an unknown command, and commands
	// handle their own errors, so ignore a returned error here so we don't
	// double print it.
	_ = cli.BaseCommandSet().Execute()
}

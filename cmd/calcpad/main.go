//go:build !(rp2040 || rp2350)

package main

import (
	"os"

	"calcpad-go/cmd/calcpad/commands"
)

// Version information, set during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.SetVersionInfo(version, commit)
	if err := commands.Execute(); err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main is the entry point for the scrumdeck CLI binary.
package main

import (
	"os"

	cli "scrumdeck/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

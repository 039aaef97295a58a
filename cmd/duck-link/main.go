// Package main is the entry point for the duck-link CLI binary.
package main

import (
	"os"

	cli "duck-link/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

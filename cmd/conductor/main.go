// Package main is the Conductor's process entrypoint.
package main

import "github.com/mystiatech/conductor/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

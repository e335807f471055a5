// Package main is the single-binary entrypoint for the TuTu coordination node.
package main

import "github.com/tutu-network/coord/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

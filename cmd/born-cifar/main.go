// Package main provides the born-cifar command line tool.
package main

import (
	"context"
	"os"
)

const version = "v0.0.1-dev"

func main() {
	if err := NewCLI().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// Package main provides the entry point for the codesearch CLI.
package main

import (
	"os"

	"github.com/coa-dev/codesearch/cmd/codesearch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

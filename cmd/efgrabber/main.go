// Package main is the efgrabber CLI entrypoint.
package main

import (
	"os"

	"github.com/segin2005/efgrabber/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

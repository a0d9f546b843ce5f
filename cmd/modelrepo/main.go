// Package main is the entry point for the modelrepo CLI.
package main

import (
	"fmt"
	"os"

	"github.com/bargom/modelrepo/cmd/modelrepo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

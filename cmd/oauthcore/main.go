// Package main is the entry point for the oauthcore command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/collectionlab/oauthcore/cmd/oauthcore/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}

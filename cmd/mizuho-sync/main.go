// Package main is the entry point for the sync server.
package main

import (
	"os"

	"github.com/Ukasha007/mizuho-algolia/cmd/mizuho-sync/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

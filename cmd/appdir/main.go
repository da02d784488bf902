// Package main is the entry point for the appdir application directory.
package main

import (
	"os"

	"github.com/stringlate/appdir/cmd/appdir/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

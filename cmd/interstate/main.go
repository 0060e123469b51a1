// Package main is the entry point for the interstate broker CLI.
package main

import (
	"os"

	"github.com/interstate-love-song/broker/cmd/interstate/app"
	"github.com/interstate-love-song/broker/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

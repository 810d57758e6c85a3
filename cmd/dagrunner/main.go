// Package main is the entry point for the dagrunner command.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "dagrunner"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

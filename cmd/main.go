// Package main is the production entry point for the QuietRoom ambient
// sound player.
//
// QuietRoom plays two independent looping sound lanes (brown noise and
// rain) with per-lane volume, skip with a gapless crossfade, and a
// shared shuffle, backed by an S3-compatible sound library.
//
// Build:
//
//	go build -o build/quietroom ./cmd
//
// Run:
//
//	./build/quietroom
package main

import (
	"fmt"
	"log"

	"github.com/quietroom/quietroom/internal/app"
)

func main() {
	application, err := app.NewApplication(app.DefaultOptions())
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Ensure a graceful shutdown
	defer func() {
		fmt.Println("\nShutting down...")
		application.Shutdown()
	}()

	// Run application (blocks until the window is closed)
	application.Run()
}

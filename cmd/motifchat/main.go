// Command motifchat is a terminal chat client for streaming LLM providers.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	go run ./cmd/motifchat
//
// Or serve the same chat over a websocket:
//
//	go run ./cmd/motifchat serve --listen 127.0.0.1:8080
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

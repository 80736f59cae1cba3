package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/beau-wood/Network-Ops-MCP/cmd"
)

func main() {
	// Optional .env for local runs; absence is not an error.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

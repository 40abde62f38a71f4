// Command attachctl manages attachments and runs orphan-blob reconciliation.
//
// Configuration comes from the environment (see config.WithEnv), an optional
// .env file in the working directory, and an optional YAML file (--config).
// With the default in-memory database every invocation starts empty, so the
// memory backend is only useful for trying the commands out.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

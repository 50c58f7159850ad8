package main

import (
	"fmt"
	"os"

	"github.com/ppiankov/resubmit/internal/cli"
	"github.com/ppiankov/resubmit/internal/exitcode"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcode.UsageError)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"finscope/internal/cli"
)

var version = "0.1.0"

func main() {
	if err := cli.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

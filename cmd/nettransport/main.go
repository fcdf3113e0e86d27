package main

import (
	"fmt"
	"os"

	"github.com/mithrel/nettransport/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nettransport:", err)
		os.Exit(1)
	}
}

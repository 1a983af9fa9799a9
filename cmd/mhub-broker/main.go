package main

import (
	"fmt"
	"os"

	"github.com/mhub-dev/mhub/cmd/mhub-broker/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

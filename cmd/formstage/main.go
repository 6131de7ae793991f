package main

import (
	"os"

	"github.com/davidroman0O/formstage/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

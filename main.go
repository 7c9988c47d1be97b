package main

import (
	"os"

	"github.com/conneroisu/workpipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

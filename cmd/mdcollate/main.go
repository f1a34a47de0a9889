package main

import (
	"os"

	"github.com/solatis/mdcollate/cmd/mdcollate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

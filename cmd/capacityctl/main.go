package main

import (
	"os"

	"github.com/arnavshah/capacity-scheduler-api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

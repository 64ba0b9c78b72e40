package main

import (
	"os"

	"github.com/msto63/mSYS/cmd/msys/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/bgdnvk/deploytool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

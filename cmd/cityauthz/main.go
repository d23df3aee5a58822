package main

import (
	"os"

	"github.com/porthorian/cityauthz/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/yeremiapane/pos-integrity/utils"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		utils.ErrorLogger.Error(err)
		os.Exit(1)
	}
}

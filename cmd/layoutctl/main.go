package main

import (
	"os"

	"github.com/albireo-project/uds-layout/pkg/ulog"
)

var log ulog.View

func main() {
	commandInit()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

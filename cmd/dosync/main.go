package main

import (
	"os"

	"github.com/arthur-debert/dosync/internal/cli"
	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/style"
)

func main() {
	rootCmd := cli.NewRootCmd()
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		style.NewRenderer(os.Stderr, style.DetectColor(os.Stderr)).Error(err)
		os.Exit(errors.ExitCode(err))
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/taskloop/taskloop/internal/cmd"
	errs "github.com/taskloop/taskloop/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "taskloop:", err)
		os.Exit(errs.ExitCode(err))
	}
}

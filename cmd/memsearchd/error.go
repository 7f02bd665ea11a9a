package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// fatal prints an error message to standard error and terminates the
// process with an error exit code.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
	os.Exit(1)
}

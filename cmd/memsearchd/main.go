// Command memsearchd runs the host-resident code-search daemon: it accepts
// tenant registrations over a local Unix socket, builds a memory-mapped
// cache of each tenant's registered directory, keeps that cache live via a
// filesystem watch, and serves parallel regex searches against it.
package main

import (
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/curserve/memsearchd/pkg/dispatch"
	"github.com/curserve/memsearchd/pkg/logging"
)

// runConfiguration holds every flag-bound setting for the run command,
// matching the teacher's package-level-configuration-struct idiom.
var runConfiguration struct {
	// maxResults is the default result ceiling applied to every search.
	maxResults int
	// quiet disables all daemon logging.
	quiet bool
}

func run(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	logger := logging.RootLogger
	if runConfiguration.quiet {
		logger = nil
	}

	dispatcher, err := dispatch.New(logger, runConfiguration.maxResults)
	if err != nil {
		return errors.Wrap(err, "unable to construct dispatcher")
	}

	runErrors := make(chan error, 1)
	go func() {
		runErrors <- dispatcher.Run()
	}()

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, terminationSignals...)

	select {
	case sig := <-terminate:
		if logger != nil {
			logger.Printf("shutting down on signal: %s", sig)
		}
		dispatcher.Shutdown()
		return nil
	case err := <-runErrors:
		return errors.Wrap(err, "dispatcher terminated")
	}
}

var rootCommand = &cobra.Command{
	Use:   "memsearchd",
	Short: "Runs the code-search daemon",
	RunE:  run,
}

func init() {
	flags := rootCommand.Flags()
	flags.SortFlags = false
	flags.IntVar(&runConfiguration.maxResults, "max-results", 0, "default result ceiling for searches (0 selects the built-in default)")
	flags.BoolVar(&runConfiguration.quiet, "quiet", false, "disable daemon logging")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fatal(err)
	}
}

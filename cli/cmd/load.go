package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic-stacker/stacker/engine"
)

func newLoadCommand(flags *rootFlags) *cobra.Command {
	var (
		dataDirectory     string
		deleteAfterImport bool
		temp              bool
		retries           int
		allowFailure      bool
		stubborn          bool
	)

	cmd := &cobra.Command{
		Use:   "load [types...]",
		Short: "Import dumped configuration resources into the cluster",
		Long: `Load imports every supported resource type (or only the named ones)
from the data directory into the cluster.

Resources sometimes depend on each other across types, so a single pass
can fail on ordering alone. --retries repeats the whole pass; --delete
removes each file once it imports so retries only resubmit failures;
--temp runs against a scratch copy so deletion never touches the real
dump. --stubborn combines all three with five retries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.close()

			return app.driver.SystemLoad(cmd.Context(), engine.SystemLoadOptions{
				Types:             args,
				DataDirectory:     dataDirectory,
				DeleteAfterImport: deleteAfterImport,
				Temp:              temp,
				Retries:           retries,
				AllowFailure:      allowFailure,
				Stubborn:          stubborn,
			})
		},
	}

	cmd.Flags().StringVar(&dataDirectory, "data-directory", "", "Load from this directory instead of the configured one")
	cmd.Flags().BoolVar(&deleteAfterImport, "delete", false, "Delete each file after it imports successfully")
	cmd.Flags().BoolVar(&temp, "temp", false, "Operate on a temporary copy of the data directory")
	cmd.Flags().IntVar(&retries, "retries", 0, "Repeat the whole load pass this many extra times")
	cmd.Flags().BoolVar(&allowFailure, "allow-failure", false, "Continue past per-resource import failures")
	cmd.Flags().BoolVar(&stubborn, "stubborn", false, "Shorthand for --delete --temp --allow-failure --retries=5")

	return cmd
}

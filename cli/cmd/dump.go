package cmd

import (
	"github.com/spf13/cobra"

	"github.com/elastic-stacker/stacker/engine"
)

func newDumpCommand(flags *rootFlags) *cobra.Command {
	var (
		includeManaged      bool
		includeExperimental bool
		purge               bool
		forcePurge          bool
		dataDirectory       string
	)

	cmd := &cobra.Command{
		Use:   "dump [types...]",
		Short: "Export cluster configuration resources to the data directory",
		Long: `Dump exports every supported resource type (or only the named ones) to
one JSON file per resource under the data directory. Files belonging to
resources that no longer exist on the cluster are left in place unless
--purge or --force-purge is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.close()

			return app.driver.SystemDump(cmd.Context(), engine.SystemDumpOptions{
				Types:               args,
				IncludeManaged:      includeManaged,
				IncludeExperimental: includeExperimental,
				Purge:               purge,
				ForcePurge:          forcePurge,
				DataDirectory:       dataDirectory,
			})
		},
	}

	cmd.Flags().BoolVar(&includeManaged, "include-managed", false, "Also dump resources managed by the cluster itself")
	cmd.Flags().BoolVar(&includeExperimental, "include-experimental", false, "Also dump resource types that have no loader yet")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete files for resources missing from the cluster, after confirmation")
	cmd.Flags().BoolVar(&forcePurge, "force-purge", false, "Delete files for missing resources without confirmation")
	cmd.Flags().StringVar(&dataDirectory, "data-directory", "", "Dump into this directory instead of the configured one")

	return cmd
}

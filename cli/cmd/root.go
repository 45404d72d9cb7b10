// Package cmd implements the stacker command line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = newRootCommand()

func Execute() error {
	return rootCmd.Execute()
}

func NewRootCommand() *cobra.Command {
	return newRootCommand()
}

type rootFlags struct {
	config        string
	profile       string
	elasticsearch string
	kibana        string
	ca            string
	timeout       float64
	logLevel      string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "stacker",
		Short: "Move Elasticsearch and Kibana configuration between clusters",
		Long: `Stacker dumps Elasticsearch and Kibana configuration resources (index
templates, ingest pipelines, transforms, watches, roles, saved objects
and more) to a tree of JSON files, and loads them back into a cluster.

The file tree is designed to live under version control: dumps are
deterministic, secrets can be masked with substitution rules, and stale
files from deleted resources can be purged on request.`,
		Example: `  # Dump everything from the cluster in the default profile
  stacker dump

  # Dump only ingest pipelines and watches, purging files for deleted resources
  stacker dump pipelines watches --purge

  # Load a dump into another cluster, retrying until the import converges
  stacker --profile production load --stubborn`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to the configuration file")
	cmd.PersistentFlags().StringVarP(&flags.profile, "profile", "p", "", "Named configuration profile to use")
	cmd.PersistentFlags().StringVar(&flags.elasticsearch, "elasticsearch", "", "Elasticsearch base URL (overrides the profile)")
	cmd.PersistentFlags().StringVar(&flags.kibana, "kibana", "", "Kibana base URL (overrides the profile)")
	cmd.PersistentFlags().StringVar(&flags.ca, "ca", "", "CA certificate bundle for TLS verification")
	cmd.PersistentFlags().Float64Var(&flags.timeout, "timeout", 0, "Request timeout in seconds")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newDumpCommand(flags))
	cmd.AddCommand(newLoadCommand(flags))
	cmd.AddCommand(newTransformCommand(flags))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

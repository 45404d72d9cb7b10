package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elastic-stacker/stacker/engine"
)

func newTransformCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Manage the running state of transforms",
	}

	cmd.AddCommand(newTransformStartCommand(flags))
	cmd.AddCommand(newTransformStopCommand(flags))
	cmd.AddCommand(newTransformSetStateCommand(flags))

	return cmd
}

func transformController(app *app) (*engine.Controller, error) {
	return app.registry.Controller("transforms")
}

func newTransformStartCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a stopped transform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.close()

			controller, err := transformController(app)
			if err != nil {
				return err
			}
			return controller.StartTransform(cmd.Context(), args[0])
		},
	}
}

func newTransformStopCommand(flags *rootFlags) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running transform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.close()

			controller, err := transformController(app)
			if err != nil {
				return err
			}
			return controller.StopTransform(cmd.Context(), args[0], wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for in-flight work to finish before returning")
	return cmd
}

func newTransformSetStateCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-state <id> <state>",
		Short: "Drive a transform to a started or stopped state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.close()

			controller, err := transformController(app)
			if err != nil {
				return err
			}
			if err := controller.SetTransformState(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transform %s: %s\n", args[0], args[1])
			return nil
		},
	}
}

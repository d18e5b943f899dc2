package main

import (
	"fmt"
	"slices"

	"github.com/flemzord/substackulous/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart>",
		Short:     "Manage substackulous as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.ControlAction[:],
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			if !slices.Contains(service.ControlAction[:], action) {
				return fmt.Errorf("unknown action %q (valid: %v)", action, service.ControlAction)
			}
			params := runParams(cmd)
			if action == "install" && params.ConfigPath == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				params.ConfigPath = resolved
			}
			s, err := app.NewService(params)
			if err != nil {
				return err
			}
			if err := service.Control(s, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Configuration file used by the installed service")
	cmd.Flags().String("data-dir", "", "Override the data directory")
	return cmd
}

package cmd

import (
	"context"

	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/spf13/cobra"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [environment]",
	Short: "Tear down the provisioned stack",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := deploy.DefaultEnvironment
		if len(args) == 1 {
			label = args[0]
		}
		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			return o.Destroy(ctx, label)
		})
	},
}

package cmd

import (
	"context"

	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [environment]",
	Short: "Build, publish and provision the initialized project",
	Long: `Re-clone the project, generate its Dockerfile, build and push a new image tagged
with the current UTC time, then run terraform apply with that image.

The environment label (default "dev") is printed but does not isolate resources:
every label targets the same stack.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := deploy.DeployRequest{Environment: deploy.DefaultEnvironment}
		if len(args) == 1 {
			req.Environment = args[0]
		}
		req.UploadSource, _ = cmd.Flags().GetBool("upload-source")
		req.SourceMaps, _ = cmd.Flags().GetBool("source-maps")

		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			_, err := o.Deploy(ctx, req)
			return err
		})
	},
}

func init() {
	deployCmd.Flags().Bool("upload-source", false, "upload the cloned source to the bucket under <repo>/<tag>/")
	deployCmd.Flags().Bool("source-maps", false, "keep source maps in the production build")
}

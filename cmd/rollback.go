package cmd

import (
	"context"

	"github.com/bgdnvk/deploytool/internal/cli"
	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Re-apply terraform with a previously pushed image tag",
	Long: `Point the stack at an existing image tag without cloning or building anything.
The tag is not checked against the registry; a missing tag fails when the
service tries to pull it. Use "deploytool images" to list tags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		if tag == "" {
			t, err := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).PromptString("Enter the previous image tag to rollback")
			if err != nil {
				return err
			}
			tag = t
		}

		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			_, err := o.Rollback(ctx, tag)
			return err
		})
	},
}

func init() {
	rollbackCmd.Flags().String("tag", "", "ECR image tag to roll back to")
}

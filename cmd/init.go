package cmd

import (
	"context"

	"github.com/bgdnvk/deploytool/internal/cli"
	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [repo_url]",
	Short: "Clone a repository and record it as the project to deploy",
	Long: `Clone the repository, make sure the source bucket exists, detect the project
type and save the project config. Without an argument the URL is prompted for.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoURL := ""
		if len(args) == 1 {
			repoURL = args[0]
		} else {
			url, err := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).PromptString("Git repository URL")
			if err != nil {
				return err
			}
			repoURL = url
		}

		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			_, err := o.Init(ctx, repoURL)
			return err
		})
	},
}

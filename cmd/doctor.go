package cmd

import (
	"fmt"
	"strings"

	"github.com/bgdnvk/deploytool/internal/cli"
	"github.com/bgdnvk/deploytool/internal/runner"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that git, docker and terraform are installed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		// version output is parsed, not shown
		checker := cli.NewDependencyChecker(runner.NewExec(nil, a.logger), cli.Tools(a.settings.Terraform.Binary))
		deps := checker.CheckAll(cmd.Context())

		fmt.Fprintf(a.out, "Platform: %s/%s\n", cli.GetPlatform(), cli.GetArch())
		cli.PrintDependencyStatus(a.out, deps)

		var missing []string
		for _, d := range cli.Missing(deps) {
			missing = append(missing, d.Name)
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
		}
		return nil
	},
}

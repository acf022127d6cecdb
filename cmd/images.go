package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bgdnvk/deploytool/internal/aws"
	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List pushed image tags, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			tags, err := o.Images(ctx)
			if err != nil {
				return err
			}
			writeImages(a.out, tags)
			return nil
		})
	},
}

func writeImages(out io.Writer, tags []aws.ImageTag) {
	if len(tags) == 0 {
		fmt.Fprintln(out, "No images pushed yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tPUSHED\tSIZE\tDIGEST\tORIGIN")
	for _, t := range tags {
		origin := "external"
		if deploy.IsTimestampTag(t.Tag) {
			origin = "deploy"
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f MB\t%s\t%s\n", t.Tag, t.PushedAt.UTC().Format(time.RFC3339), t.SizeMB, shortDigest(t.Digest), origin)
	}
	w.Flush()
}

func shortDigest(d string) string {
	if len(d) > 19 {
		return d[:19]
	}
	return d
}

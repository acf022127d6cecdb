package cmd

import (
	"context"

	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage the Prometheus/Grafana monitoring host",
}

var monitorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the monitoring stack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			return o.MonitorInit(ctx)
		})
	},
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe Prometheus, Grafana and Node Exporter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			_, err := o.MonitorStatus(ctx)
			return err
		})
	},
}

var monitorDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the monitoring URLs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(ctx context.Context, a *app, o *deploy.Orchestrator) error {
			_, err := o.MonitorDashboard(ctx)
			return err
		})
	},
}

func init() {
	monitorCmd.AddCommand(monitorInitCmd)
	monitorCmd.AddCommand(monitorStatusCmd)
	monitorCmd.AddCommand(monitorDashboardCmd)
}

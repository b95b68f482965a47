package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tracker/pkg/cli"
	"mercator-hq/tracker/pkg/config"
	"mercator-hq/tracker/pkg/requestlog"
	"mercator-hq/tracker/pkg/requestlog/retention"
)

var logsFlags struct {
	project    string
	deployment string
	limit      int
	format     string
	days       int
	maxRecords int64
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and maintain stored request logs",
	Long: `Inspect and maintain the request logs in the configured store.

Subcommands:
  list   - Show the newest entries of a deployment
  clear  - Delete every entry of a deployment
  prune  - Apply the retention policy once

Examples:
  tracker logs list --project p1 --deployment d1 --limit 20
  tracker logs clear --project p1 --deployment d1
  tracker logs prune --days 7`,
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the newest entries of a deployment",
	RunE:  listLogs,
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry of a deployment",
	RunE:  clearLogs,
}

var logsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy once",
	Long: `Delete entries older than --days and keep at most --max-records per
deployment. Both default to the retention section of the configuration.`,
	RunE: pruneLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsListCmd, logsClearCmd, logsPruneCmd)

	for _, cmd := range []*cobra.Command{logsListCmd, logsClearCmd} {
		cmd.Flags().StringVar(&logsFlags.project, "project", "", "project ID (required)")
		cmd.Flags().StringVar(&logsFlags.deployment, "deployment", "", "deployment ID (required)")
		cmd.MarkFlagRequired("project")
		cmd.MarkFlagRequired("deployment")
	}
	for _, cmd := range []*cobra.Command{logsListCmd, logsClearCmd, logsPruneCmd} {
		cmd.Flags().StringVar(&logsFlags.format, "format", "text", "output format: text, json")
	}

	logsListCmd.Flags().IntVar(&logsFlags.limit, "limit", 50, "max entries")

	logsPruneCmd.Flags().IntVar(&logsFlags.days, "days", 0, "override retention.days")
	logsPruneCmd.Flags().Int64Var(&logsFlags.maxRecords, "max-records", 0, "override retention.max_records_per_deployment")
}

// openConfiguredStore loads the configuration and opens its store. The
// memory backend holds nothing outside a running tracker.
func openConfiguredStore(ctx context.Context) (*config.Config, requestlog.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if _, err := setupLogging(cfg); err != nil {
		return nil, nil, err
	}
	if cfg.Store.Backend == "memory" {
		return nil, nil, cli.NewConfigError(cfgFile, "store.backend is memory; there are no stored logs to inspect", nil)
	}
	store, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// logTable renders entries as a text table.
type logTable []*requestlog.Entry

func (t logTable) Headers() []string {
	return []string{"ID", "TIME", "METHOD", "PATH", "STATUS", "MS", "IP", "ERROR"}
}

func (t logTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, e := range t {
		rows[i] = []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Local().Format(time.DateTime),
			e.Method,
			e.Path,
			strconv.Itoa(e.Status),
			strconv.FormatInt(e.ResponseTime, 10),
			e.RequestIP,
			e.ErrorDetail,
		}
	}
	return rows
}

func listLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(logsFlags.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, store, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, logsFlags.project, logsFlags.deployment, logsFlags.limit)
	if err != nil {
		return cli.NewCommandError("logs list", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No request logs for %s/%s\n", logsFlags.project, logsFlags.deployment)
		return nil
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), logTable(entries))
}

// deleteResult is the output of clear and prune.
type deleteResult struct {
	ProjectID    string `json:"projectId,omitempty"`
	DeploymentID string `json:"deploymentId,omitempty"`
	Deleted      int64  `json:"deleted"`
}

func (r deleteResult) String() string {
	if r.DeploymentID != "" {
		return fmt.Sprintf("✓ Deleted %d entries for %s/%s", r.Deleted, r.ProjectID, r.DeploymentID)
	}
	return fmt.Sprintf("✓ Pruned %d entries", r.Deleted)
}

func clearLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(logsFlags.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, store, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.DeleteAll(ctx, logsFlags.project, logsFlags.deployment)
	if err != nil {
		return cli.NewCommandError("logs clear", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), deleteResult{
		ProjectID:    logsFlags.project,
		DeploymentID: logsFlags.deployment,
		Deleted:      deleted,
	})
}

func pruneLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(logsFlags.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, store, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	rc := retentionConfig(&cfg.Retention)
	if logsFlags.days > 0 {
		rc.RetentionDays = logsFlags.days
	}
	if logsFlags.maxRecords > 0 {
		rc.MaxRecordsPerDeployment = logsFlags.maxRecords
	}
	if rc.RetentionDays <= 0 && rc.MaxRecordsPerDeployment <= 0 {
		return cli.NewConfigError(cfgFile, "no retention policy: set retention.days, retention.max_records_per_deployment, --days or --max-records", nil)
	}

	deleted, err := retention.NewPruner(store, rc).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("logs prune", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), deleteResult{Deleted: deleted})
}

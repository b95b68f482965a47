// Package retention prunes stored request logs.
//
// Two independent limits are enforced:
//
//   - RetentionDays removes entries older than the given number of days
//   - MaxRecordsPerDeployment keeps only the newest N entries of every
//     (project, deployment) pair
//
// Either limit may be zero to disable it. Pruning runs on a cron schedule
// (robfig/cron standard syntax) or once via Prune.
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *",
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention

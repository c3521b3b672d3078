package tasks

import (
	"context"
	"fmt"
	"time"
)

// maintenanceTimeout bounds the VACUUM run.
const maintenanceTimeout = 5 * time.Minute

// newSQLMaintenanceTask returns the job that runs periodic SQLite maintenance.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
		defer cancel()

		if err := deps.Store.RunMaintenance(runCtx); err != nil {
			return fmt.Errorf("database maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Database maintenance finished")
		return nil
	}
}

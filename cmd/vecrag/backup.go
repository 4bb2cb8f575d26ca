package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/usecase/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup [tenant...]",
	Short: "Upload local tenant indexes to the object store",
	Long: `Upload tenant indexes found on local disk to the object store.

With no arguments every tenant under index.local_dir is uploaded.
A failing tenant does not stop the run; the command exits non-zero
when any tenant failed.

Examples:
  # Back up everything
  vecrag backup --env prod

  # Back up two tenants
  vecrag backup acme globex`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.remote == nil {
		return errors.New("object_store.backend is none, nothing to back up to")
	}

	rep, err := backup.New(a.cache, a.logger).Run(ctx, args...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tenant := range rep.Succeeded {
		fmt.Fprintf(out, "ok      %s\n", tenant)
	}
	failed := make([]string, 0, len(rep.Failed))
	for tenant := range rep.Failed {
		failed = append(failed, tenant)
	}
	slices.Sort(failed)
	for _, tenant := range failed {
		fmt.Fprintf(out, "failed  %s: %v\n", tenant, rep.Failed[tenant])
	}

	if len(failed) > 0 {
		a.logger.Error("Backup incomplete", zap.Strings("failed", failed))
		return fmt.Errorf("backup failed for %d of %d tenants", len(failed), len(failed)+len(rep.Succeeded))
	}
	return nil
}

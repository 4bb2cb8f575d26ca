// Package backup copies local tenant indexes to the object store.
package backup

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/logger"
)

// Report summarizes a backup run.
type Report struct {
	Succeeded []string
	Failed    map[string]error
}

// Service runs backups.
type Service struct {
	syncer Syncer
	logger *zap.Logger
}

// New creates a backup service.
func New(syncer Syncer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{syncer: syncer, logger: log}
}

// Run uploads the named tenants, or every tenant on local disk when none are named.
// A failing tenant is recorded and the run continues.
func (s *Service) Run(ctx context.Context, tenants ...string) (Report, error) {
	if len(tenants) == 0 {
		var err error
		tenants, err = s.syncer.DiskTenants()
		if err != nil {
			return Report{}, fmt.Errorf("list local tenants: %w", err)
		}
	}
	slices.Sort(tenants)
	tenants = slices.Compact(tenants)

	rep := Report{Succeeded: []string{}, Failed: map[string]error{}}
	if len(tenants) == 0 {
		s.logger.Info("No tenant indexes found, nothing to back up")
		return rep, nil
	}

	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := s.syncer.Sync(ctx, tenant); err != nil {
			s.logger.Error("Backup failed", logger.Tenant(tenant), zap.Error(err))
			rep.Failed[tenant] = err
			continue
		}
		s.logger.Info("Backed up index", logger.Tenant(tenant))
		rep.Succeeded = append(rep.Succeeded, tenant)
	}

	s.logger.Info("Backup finished",
		zap.Int("succeeded", len(rep.Succeeded)),
		zap.Int("failed", len(rep.Failed)),
	)
	return rep, nil
}

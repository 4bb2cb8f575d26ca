package backup

import "context"

// Syncer re-uploads tenant indexes to the remote store.
type Syncer interface {
	Sync(ctx context.Context, tenant string) error
	DiskTenants() ([]string, error)
}

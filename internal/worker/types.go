package worker

import (
	"context"
)

// Builder rebuilds the index of a repository root and reports how many
// chunks it embedded.
type Builder interface {
	Build(ctx context.Context, root string) (int, error)
}

type JobTracker interface {
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, chunks int) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Refresher is notified after a snapshot is published, e.g. to reload the
// list of files that may be cited as sources.
type Refresher interface {
	Refresh() error
}

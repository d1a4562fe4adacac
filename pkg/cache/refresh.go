package cache

import (
	"context"

	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/render"
)

// Refresh is a Store that never reuses an existing artifact.
// Every Ensure renders again and replaces the file in place.
type Refresh struct {
	*FileStore
}

// NewRefresh wraps s so that every lookup misses.
func NewRefresh(s *FileStore) *Refresh {
	return &Refresh{FileStore: s}
}

// Ensure always renders.
func (r *Refresh) Ensure(ctx context.Context, t render.Target, gw render.Gateway) (string, bool, error) {
	observability.Cache().OnCacheMiss(ctx, t.Format)
	path, err := r.store(ctx, t, gw)
	return path, false, err
}

var _ Store = (*Refresh)(nil)

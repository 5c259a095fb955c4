package sync

import (
	"context"
	"fmt"

	"tmmirror/internal/storage"
	"tmmirror/internal/tm"
)

type detailSource string

const (
	sourceUpdated detailSource = "just-updated"
	sourceCache   detailSource = "cache"
	sourceLive    detailSource = "live"
)

// resolver looks up one project's detail by the fixed priority chain:
// details fetched earlier in this run, then the cached blob in storage,
// then a live API fetch as last resort. A cached blob that exists but
// does not decode is an error, not a trigger for a live fetch; the
// record stays stale and heals on a later run.
type resolver struct {
	updated map[int]tm.Detail
	store   storage.ObjectStore
	api     API
}

func (r *resolver) resolve(ctx context.Context, id int) (tm.Detail, detailSource, error) {
	if d, ok := r.updated[id]; ok {
		return d, sourceUpdated, nil
	}

	if blob, err := r.store.Get(ctx, storage.ProjectKey(id)); err == nil {
		d, err := tm.DecodeDetail(blob)
		if err != nil {
			return tm.Detail{}, sourceCache, fmt.Errorf("cached blob for project %d: %w", id, err)
		}
		return d, sourceCache, nil
	}

	d, err := r.api.Detail(ctx, id)
	if err != nil {
		return tm.Detail{}, sourceLive, err
	}
	return d, sourceLive, nil
}

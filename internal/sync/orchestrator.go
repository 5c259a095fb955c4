// Package sync drives the incremental mirror pipeline: diff the remote
// listing against the persisted sync state, re-fetch stale projects,
// merge with cached details, and write the combined artifacts. The sync
// state is persisted last, so an aborted run re-detects the same
// projects next time instead of losing them.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"tmmirror/internal/feature"
	"tmmirror/internal/state"
	"tmmirror/internal/storage"
	"tmmirror/internal/tm"
)

// API lists projects and fetches per-project detail.
type API interface {
	AllProjects(ctx context.Context) ([]tm.ProjectSummary, error)
	Detail(ctx context.Context, id int) (tm.Detail, error)
}

// TilerFunc converts a feature collection file into a tiled archive.
type TilerFunc func(ctx context.Context, inPath, outPath string) error

// Deps wires the collaborators into the orchestrator.
type Deps struct {
	API     API
	Store   storage.ObjectStore
	Tiler   TilerFunc
	Log     *slog.Logger
	Workers int
	Now     func() time.Time
}

// Orchestrator runs the pipeline. One Run is one logical thread of
// control; only the detail fetches fan out, bounded by Workers.
type Orchestrator struct {
	api     API
	store   storage.ObjectStore
	tiler   TilerFunc
	log     *slog.Logger
	workers int
	now     func() time.Time
}

// New builds an orchestrator. Workers below 1 run sequentially.
func New(deps Deps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		api:     deps.API,
		store:   deps.Store,
		tiler:   deps.Tiler,
		log:     log,
		workers: workers,
		now:     now,
	}
}

// Run executes one full sync. Listing failures, artifact put failures,
// and state persistence failures abort the run; per-project failures
// are collected as skips.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := o.log.With("run_id", res.RunID[:8])
	log.Info("starting mirror sync")

	st, err := state.Load(ctx, o.store)
	if err != nil {
		return nil, err
	}
	log.Info("state loaded", "projects", st.Len())

	candidates, err := o.api.AllProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	res.Candidates = len(candidates)

	stale := diff(st, candidates)
	res.Stale = len(stale)
	log.Info("diff computed", "candidates", len(candidates), "stale", len(stale))

	if len(stale) == 0 {
		res.ShortCircuited = true
		log.Info("no changes detected, skipping artifact writes")
		return res, nil
	}

	updated, skips, err := o.syncDetails(ctx, log, st, stale)
	if err != nil {
		return nil, err
	}
	res.Skips = append(res.Skips, skips...)
	res.Synced = len(updated)

	features, skips := o.assemble(ctx, log, candidates, updated)
	res.Skips = append(res.Skips, skips...)
	collection := feature.NewCollection(features)
	res.Features = len(collection.Features)
	log.Info("feature collection assembled", "features", res.Features, "skipped", len(res.Skips))

	if err := o.writeArtifacts(ctx, log, collection, res); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		// Never persist state on a canceled run; the artifacts written
		// so far could be ahead of what this snapshot covers.
		return nil, err
	}
	if err := st.Save(ctx, o.store); err != nil {
		return nil, err
	}
	log.Info("run complete",
		"candidates", res.Candidates,
		"synced", res.Synced,
		"features", res.Features,
		"skips", len(res.Skips),
		"tiles_written", res.TilesWritten)
	return res, nil
}

// diff selects candidates whose timestamp differs from the sync state.
// Candidates missing an id or a timestamp are excluded, not errors.
func diff(st *state.State, candidates []tm.ProjectSummary) []tm.ProjectSummary {
	stale := make([]tm.ProjectSummary, 0)
	for _, c := range candidates {
		if c.ProjectID == 0 || c.LastUpdated == "" {
			continue
		}
		if st.IsStale(c.ProjectID, c.LastUpdated) {
			stale = append(stale, c)
		}
	}
	return stale
}

// syncDetails fetches every stale project's detail, persists the raw
// blob, and marks it synced. The state entry is written only after the
// blob put succeeds, so state never runs ahead of storage. A fetch
// failure skips the record; a put failure aborts the run.
func (o *Orchestrator) syncDetails(ctx context.Context, log *slog.Logger, st *state.State, stale []tm.ProjectSummary) (map[int]tm.Detail, []SkipReason, error) {
	var (
		mu       gosync.Mutex
		wg       gosync.WaitGroup
		updated  = make(map[int]tm.Detail, len(stale))
		skips    []SkipReason
		firstErr error
	)
	sem := make(chan struct{}, o.workers)
	total := len(stale)

	for i, cand := range stale {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cand tm.ProjectSummary) {
			defer wg.Done()
			defer func() { <-sem }()

			log.Info("fetching project detail", "project", cand.ProjectID, "progress", fmt.Sprintf("%d/%d", i+1, total))
			d, err := o.api.Detail(ctx, cand.ProjectID)
			if err != nil {
				log.Error("failed to fetch project detail, skipping", "project", cand.ProjectID, "error", err)
				mu.Lock()
				skips = append(skips, SkipReason{ProjectID: cand.ProjectID, Phase: PhaseDetailSync, Reason: "detail fetch failed", Err: err})
				mu.Unlock()
				return
			}

			if err := o.store.Put(ctx, storage.ProjectKey(cand.ProjectID), d.Raw, storage.ContentTypeJSON); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			st.MarkSynced(cand.ProjectID, cand.LastUpdated)
			mu.Lock()
			updated[cand.ProjectID] = d
			mu.Unlock()
		}(i, cand)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return updated, skips, nil
}

// assemble builds one feature per known project id, in ascending id
// order, resolving each detail through the priority chain.
func (o *Orchestrator) assemble(ctx context.Context, log *slog.Logger, candidates []tm.ProjectSummary, updated map[int]tm.Detail) ([]feature.Feature, []SkipReason) {
	seen := make(map[int]struct{}, len(candidates))
	ids := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if c.ProjectID == 0 {
			continue
		}
		if _, ok := seen[c.ProjectID]; ok {
			continue
		}
		seen[c.ProjectID] = struct{}{}
		ids = append(ids, c.ProjectID)
	}
	sort.Ints(ids)

	r := &resolver{updated: updated, store: o.store, api: o.api}

	var features []feature.Feature
	var skips []SkipReason
	for _, id := range ids {
		d, src, err := r.resolve(ctx, id)
		if err != nil {
			log.Warn("could not resolve project detail, skipping", "project", id, "error", err)
			skips = append(skips, SkipReason{ProjectID: id, Phase: PhaseAssemble, Reason: "unresolvable detail", Err: err})
			continue
		}
		f := feature.Build(d)
		if f == nil {
			log.Warn("project has no usable geometry, skipping", "project", id, "source", string(src))
			skips = append(skips, SkipReason{ProjectID: id, Phase: PhaseAssemble, Reason: "missing or invalid geometry"})
			continue
		}
		features = append(features, *f)
	}
	return features, skips
}

// writeArtifacts uploads the collection and summary, then attempts the
// tiled artifact. Tiling failure is soft; put failures propagate.
func (o *Orchestrator) writeArtifacts(ctx context.Context, log *slog.Logger, collection feature.Collection, res *Result) error {
	collectionBytes, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}
	summary := feature.NewSummary(collection, o.now())
	summaryBytes, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res.SummaryEntries = summary.TotalProjects

	if err := o.store.Put(ctx, storage.KeyCollection, collectionBytes, storage.ContentTypeGeoJSON); err != nil {
		return err
	}
	log.Info("uploaded feature collection", "key", storage.KeyCollection, "features", res.Features)

	if err := o.store.Put(ctx, storage.KeySummary, summaryBytes, storage.ContentTypeJSON); err != nil {
		return err
	}
	log.Info("uploaded summary", "key", storage.KeySummary, "entries", res.SummaryEntries)

	if o.tiler == nil {
		return nil
	}
	tileData, err := o.generateTiles(ctx, collectionBytes)
	if err != nil {
		log.Warn("tile generation failed, continuing without tiled artifact", "error", err)
		return nil
	}
	if err := o.store.Put(ctx, storage.KeyTiles, tileData, storage.ContentTypePMTiles); err != nil {
		return err
	}
	log.Info("uploaded tiles", "key", storage.KeyTiles, "bytes", len(tileData))
	res.TilesWritten = true
	return nil
}

func (o *Orchestrator) generateTiles(ctx context.Context, collectionBytes []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "tmmirror-tiles-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, storage.KeyCollection)
	outPath := filepath.Join(dir, storage.KeyTiles)
	if err := os.WriteFile(inPath, collectionBytes, 0o644); err != nil {
		return nil, err
	}
	if err := o.tiler(ctx, inPath, outPath); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

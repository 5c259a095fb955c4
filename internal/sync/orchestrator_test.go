package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmmirror/internal/feature"
	"tmmirror/internal/storage"
	"tmmirror/internal/tm"
)

const aoi = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

func detailJSON(id int, lastUpdated string) []byte {
	return []byte(fmt.Sprintf(`{
		"projectId": %d,
		"status": "PUBLISHED",
		"imagery": "Bing",
		"areaOfInterest": %s,
		"countryTag": ["Nepal"],
		"organisationName": "HOT",
		"projectInfo": {"name": "Project %d"},
		"created": "2023-01-01T00:00:00Z",
		"lastUpdated": %q
	}`, id, aoi, id, lastUpdated))
}

func detailJSONNoGeometry(id int) []byte {
	return []byte(fmt.Sprintf(`{"projectId": %d, "status": "DRAFT", "projectInfo": {"name": "Project %d"}}`, id, id))
}

type fakeAPI struct {
	mu          gosync.Mutex
	listing     []tm.ProjectSummary
	listErr     error
	details     map[int][]byte
	detailErr   map[int]error
	detailCalls map[int]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{details: map[int][]byte{}, detailErr: map[int]error{}, detailCalls: map[int]int{}}
}

func (f *fakeAPI) AllProjects(ctx context.Context) ([]tm.ProjectSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakeAPI) Detail(ctx context.Context, id int) (tm.Detail, error) {
	f.mu.Lock()
	f.detailCalls[id]++
	raw, ok := f.details[id]
	err := f.detailErr[id]
	f.mu.Unlock()
	if err != nil {
		return tm.Detail{}, err
	}
	if !ok {
		return tm.Detail{}, fmt.Errorf("project %d: http 404", id)
	}
	return tm.DecodeDetail(raw)
}

type memStore struct {
	mu      gosync.Mutex
	objects map[string][]byte
	putErr  map[string]error
	puts    []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, putErr: map[string]error{}}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return body, nil
}

func (m *memStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putErr[key]; err != nil {
		return err
	}
	m.objects[key] = body
	m.puts = append(m.puts, key)
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (m *memStore) stateEntries(t *testing.T) map[string]string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.objects[storage.KeyState]
	if !ok {
		return nil
	}
	var entries map[string]string
	require.NoError(t, json.Unmarshal(raw, &entries))
	return entries
}

func okTiler(out []byte) TilerFunc {
	return func(ctx context.Context, inPath, outPath string) error {
		return os.WriteFile(outPath, out, 0o644)
	}
}

func newOrchestrator(api *fakeAPI, store *memStore, tiler TilerFunc, workers int) *Orchestrator {
	return New(Deps{
		API:     api,
		Store:   store,
		Tiler:   tiler,
		Workers: workers,
		Now:     func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	// id 1: stale (new timestamp), id 2: unchanged, id 3: unknown and
	// unfetchable.
	api.listing = []tm.ProjectSummary{
		{ProjectID: 3, LastUpdated: "t3"},
		{ProjectID: 1, LastUpdated: "t1-new"},
		{ProjectID: 2, LastUpdated: "t2"},
	}
	api.details[1] = detailJSON(1, "t1-new")
	api.detailErr[3] = errors.New("http 500")

	store.objects[storage.KeyState] = []byte(`{"1": "t1-old", "2": "t2"}`)
	store.objects[storage.ProjectKey(2)] = detailJSON(2, "t2")

	o := newOrchestrator(api, store, okTiler([]byte("PMTiles")), 1)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 2, res.Stale, "ids 1 and 3 are stale")
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 2, res.Features)
	assert.Equal(t, 2, res.SummaryEntries)
	assert.False(t, res.ShortCircuited)
	assert.True(t, res.TilesWritten)

	var c feature.Collection
	require.NoError(t, json.Unmarshal(store.objects[storage.KeyCollection], &c))
	require.Len(t, c.Features, 2)
	assert.Equal(t, 1, c.Features[0].Properties.ProjectID)
	assert.Equal(t, 2, c.Features[1].Properties.ProjectID)

	var s feature.Summary
	require.NoError(t, json.Unmarshal(store.objects[storage.KeySummary], &s))
	assert.Equal(t, 2, s.TotalProjects)
	assert.Equal(t, "2024-06-01T00:00:00Z", s.Generated)

	// State: id 1 advanced, id 2 untouched, id 3 absent (still stale
	// next run).
	assert.Equal(t, map[string]string{"1": "t1-new", "2": "t2"}, store.stateEntries(t))

	// id 1's raw blob was re-uploaded; id 2 came from cache without a
	// live fetch.
	assert.Equal(t, detailJSON(1, "t1-new"), store.objects[storage.ProjectKey(1)])
	assert.Equal(t, 0, api.detailCalls[2])

	// Skips: detail fetch for 3, then unresolvable at assemble.
	require.Len(t, res.Skips, 2)
	assert.Equal(t, PhaseDetailSync, res.Skips[0].Phase)
	assert.Equal(t, 3, res.Skips[0].ProjectID)
	assert.Equal(t, PhaseAssemble, res.Skips[1].Phase)
	assert.Equal(t, 3, res.Skips[1].ProjectID)

	assert.Equal(t, []byte("PMTiles"), store.objects[storage.KeyTiles])
}

func TestRunShortCircuitsWhenNothingStale(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	api.listing = []tm.ProjectSummary{
		{ProjectID: 1, LastUpdated: "t1"},
		{ProjectID: 2, LastUpdated: "t2"},
	}
	store.objects[storage.KeyState] = []byte(`{"1": "t1", "2": "t2"}`)

	o := newOrchestrator(api, store, okTiler(nil), 1)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.True(t, res.ShortCircuited)
	assert.Empty(t, store.puts, "no artifact writes on a no-change run")
	assert.Equal(t, 0, res.Synced)
}

func TestRunSkipsCandidatesMissingFields(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	// No id and no timestamp respectively: excluded from the stale set
	// without error, so the run short-circuits.
	api.listing = []tm.ProjectSummary{
		{ProjectID: 0, LastUpdated: "t"},
		{ProjectID: 5, LastUpdated: ""},
	}

	o := newOrchestrator(api, store, okTiler(nil), 1)
	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.ShortCircuited)
	assert.Equal(t, 0, res.Stale)
}

func TestRunListingFailureIsFatal(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("http 503")
	store := newMemStore()

	o := newOrchestrator(api, store, okTiler(nil), 1)
	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.puts)
}

func TestRunDetailPutFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	api.listing = []tm.ProjectSummary{{ProjectID: 1, LastUpdated: "t1"}}
	api.details[1] = detailJSON(1, "t1")
	store.putErr[storage.ProjectKey(1)] = errors.New("access denied")

	o := newOrchestrator(api, store, okTiler(nil), 1)
	_, err := o.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, store.stateEntries(t), "state must not be persisted on an aborted run")
}

func TestRunTilingFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	api.listing = []tm.ProjectSummary{{ProjectID: 1, LastUpdated: "t1"}}
	api.details[1] = detailJSON(1, "t1")

	failing := func(ctx context.Context, in, out string) error {
		return errors.New("tippecanoe not found")
	}
	o := newOrchestrator(api, store, failing, 1)
	res, err := o.Run(ctx)
	require.NoError(t, err, "tiling failure must not fail the run")

	assert.False(t, res.TilesWritten)
	assert.NotContains(t, store.objects, storage.KeyTiles)
	assert.Equal(t, map[string]string{"1": "t1"}, store.stateEntries(t), "state is still persisted")
}

func TestRunStatePersistFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	api.listing = []tm.ProjectSummary{{ProjectID: 1, LastUpdated: "t1"}}
	api.details[1] = detailJSON(1, "t1")
	store.putErr[storage.KeyState] = errors.New("access denied")

	o := newOrchestrator(api, store, okTiler(nil), 1)
	_, err := o.Run(ctx)
	require.Error(t, err)
	// Other artifacts were already written; the next run redoes the
	// detail fetch because state never advanced.
	assert.Contains(t, store.objects, storage.KeyCollection)
}

func TestRunDropsGeometrylessProjects(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	api.listing = []tm.ProjectSummary{
		{ProjectID: 1, LastUpdated: "t1"},
		{ProjectID: 2, LastUpdated: "t2"},
	}
	api.details[1] = detailJSON(1, "t1")
	api.details[2] = detailJSONNoGeometry(2)

	o := newOrchestrator(api, store, okTiler(nil), 1)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 1, res.Features)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, 2, res.Skips[0].ProjectID)
	assert.Equal(t, PhaseAssemble, res.Skips[0].Phase)

	// The geometry-less project is still marked synced: its blob was
	// written, it just produces no feature.
	assert.Equal(t, "t2", store.stateEntries(t)["2"])
}

func TestRunMalformedCachedBlobSkips(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newMemStore()

	api.listing = []tm.ProjectSummary{
		{ProjectID: 1, LastUpdated: "t1-new"},
		{ProjectID: 2, LastUpdated: "t2"},
	}
	api.details[1] = detailJSON(1, "t1-new")
	store.objects[storage.KeyState] = []byte(`{"2": "t2"}`)
	store.objects[storage.ProjectKey(2)] = []byte("{corrupt")

	o := newOrchestrator(api, store, okTiler(nil), 1)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Features)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, 2, res.Skips[0].ProjectID)
	assert.Equal(t, 0, api.detailCalls[2], "malformed cache does not trigger a live fetch")
}

func TestRunParallelWorkersMatchSequential(t *testing.T) {
	ctx := context.Background()

	build := func() (*fakeAPI, *memStore) {
		api := newFakeAPI()
		store := newMemStore()
		for id := 1; id <= 20; id++ {
			api.listing = append(api.listing, tm.ProjectSummary{ProjectID: id, LastUpdated: fmt.Sprintf("t%d", id)})
			api.details[id] = detailJSON(id, fmt.Sprintf("t%d", id))
		}
		api.detailErr[7] = errors.New("http 500")
		return api, store
	}

	api1, store1 := build()
	res1, err := newOrchestrator(api1, store1, okTiler([]byte("x")), 1).Run(ctx)
	require.NoError(t, err)

	api8, store8 := build()
	res8, err := newOrchestrator(api8, store8, okTiler([]byte("x")), 8).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, res1.Synced, res8.Synced)
	assert.Equal(t, res1.Features, res8.Features)
	assert.Equal(t, len(res1.Skips), len(res8.Skips))
	assert.Equal(t, store1.objects[storage.KeyCollection], store8.objects[storage.KeyCollection])
	assert.Equal(t, store1.stateEntries(t), store8.stateEntries(t))
}

func TestRunCanceledContextSkipsStatePersist(t *testing.T) {
	api := newFakeAPI()
	store := newMemStore()
	api.listing = []tm.ProjectSummary{{ProjectID: 1, LastUpdated: "t1"}}
	api.details[1] = detailJSON(1, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	tiler := func(tctx context.Context, in, out string) error {
		cancel() // run gets canceled mid-pipeline
		return errors.New("canceled")
	}

	o := newOrchestrator(api, store, tiler, 1)
	_, err := o.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, store.stateEntries(t))
}

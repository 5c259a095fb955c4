package feature

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmmirror/internal/tm"
)

const testAOI = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

func detailFixture(id int) tm.Detail {
	return tm.Detail{ProjectDetail: tm.ProjectDetail{
		ProjectID:        id,
		Status:           "PUBLISHED",
		Imagery:          "ESRI World Imagery",
		AreaOfInterest:   json.RawMessage(testAOI),
		CountryTag:       []string{"Nepal", "India"},
		OrganisationName: "HOT",
		ProjectInfo:      tm.ProjectInfo{Name: "Mapping Nepal"},
		Created:          "2023-05-17T09:30:00.123456Z",
		MappingTypes:     []string{"BUILDINGS"},
		Difficulty:       "EASY",
		ProjectPriority:  "URGENT",
		LastUpdated:      "2024-01-01T00:00:00Z",
	}}
}

func TestBuildEnrichesProperties(t *testing.T) {
	f := Build(detailFixture(42))
	require.NotNil(t, f)

	assert.Equal(t, "Feature", f.Type)
	assert.JSONEq(t, testAOI, string(f.Geometry))

	p := f.Properties
	assert.Equal(t, 42, p.ProjectID)
	assert.Equal(t, "Mapping Nepal", p.Name)
	assert.Equal(t, "Esri", p.Imagery)
	assert.Equal(t, "ESRI World Imagery", p.ImageryRaw)
	assert.Equal(t, []string{"Nepal", "India"}, p.CountryTag)
	assert.Equal(t, "Nepal", p.Country, "country is the first tag")
	require.NotNil(t, p.AreaSqKm)
	assert.Greater(t, *p.AreaSqKm, 10000.0)
	require.NotNil(t, p.CentroidLon)
	require.NotNil(t, p.CentroidLat)
	assert.InDelta(t, 0.5, *p.CentroidLon, 1e-4)
	assert.InDelta(t, 0.5, *p.CentroidLat, 1e-4)
}

func TestBuildWithoutGeometry(t *testing.T) {
	d := detailFixture(1)
	d.AreaOfInterest = nil
	assert.Nil(t, Build(d), "no geometry, no feature")

	d.AreaOfInterest = json.RawMessage("null")
	assert.Nil(t, Build(d), "null geometry, no feature")
}

func TestBuildMalformedGeometry(t *testing.T) {
	d := detailFixture(1)
	d.AreaOfInterest = json.RawMessage(`{"type":"Polygon"}`)
	assert.Nil(t, Build(d), "undecodable geometry, no feature")

	d.AreaOfInterest = json.RawMessage(`{broken`)
	assert.Nil(t, Build(d))
}

func TestBuildEmptyCountry(t *testing.T) {
	d := detailFixture(1)
	d.CountryTag = nil
	f := Build(d)
	require.NotNil(t, f)
	assert.Equal(t, []string{}, f.Properties.CountryTag)
	assert.Equal(t, "", f.Properties.Country)
}

func TestBuildSummaryEntry(t *testing.T) {
	f := Build(detailFixture(7))
	require.NotNil(t, f)

	e := BuildSummaryEntry(*f)
	assert.Equal(t, 7, e.ID)
	assert.Equal(t, "2023-05-17", e.Created, "created truncates to calendar day")
	assert.Equal(t, []string{"Nepal", "India"}, e.Country)
	assert.Equal(t, "HOT", e.Org)
	assert.Equal(t, "URGENT", e.Priority)
	require.Len(t, e.Centroid, 2)
	assert.InDelta(t, 0.5, e.Centroid[0], 1e-4)
}

func TestBuildSummaryEntryAbsentPropagation(t *testing.T) {
	f := Feature{Type: "Feature", Properties: Properties{ProjectID: 3, Created: "2023"}}
	e := BuildSummaryEntry(f)
	assert.Nil(t, e.AreaSqKm)
	assert.Nil(t, e.Centroid)
	assert.Equal(t, "2023", e.Created, "short created strings pass through")

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"centroid":null`)
	assert.Contains(t, string(b), `"areaSqKm":null`)
}

func TestNewCollectionSortsByID(t *testing.T) {
	ids := []int{5, 3, 9, 1, 7}
	features := make([]Feature, 0, len(ids))
	for _, id := range ids {
		f := Build(detailFixture(id))
		require.NotNil(t, f)
		features = append(features, *f)
	}

	c := NewCollection(features)
	got := make([]int, 0, len(c.Features))
	for _, f := range c.Features {
		got = append(got, f.Properties.ProjectID)
	}
	assert.Equal(t, []int{1, 3, 5, 7, 9}, got)
}

func TestCollectionBytesDeterministic(t *testing.T) {
	base := make([]Feature, 0, 10)
	for id := 1; id <= 10; id++ {
		f := Build(detailFixture(id))
		require.NotNil(t, f)
		base = append(base, *f)
	}

	want, err := json.Marshal(NewCollection(base))
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		shuffled := make([]Feature, len(base))
		copy(shuffled, base)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := json.Marshal(NewCollection(shuffled))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
}

func TestNewSummary(t *testing.T) {
	f := Build(detailFixture(1))
	require.NotNil(t, f)
	c := NewCollection([]Feature{*f})

	now := time.Date(2024, 6, 1, 12, 30, 45, 999, time.UTC)
	s := NewSummary(c, now)
	assert.Equal(t, "2024-06-01T12:30:45Z", s.Generated)
	assert.Equal(t, 1, s.TotalProjects)
	require.Len(t, s.Projects, 1)
	assert.Equal(t, 1, s.Projects[0].ID)
}

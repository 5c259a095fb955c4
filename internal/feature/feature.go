// Package feature turns project details into the two downstream
// artifacts: an enriched GeoJSON feature collection and a geometry-free
// summary index. Property order is fixed by the structs so repeated
// runs over the same inputs produce identical bytes.
package feature

import (
	"encoding/json"
	"sort"
	"time"

	"tmmirror/internal/geometry"
	"tmmirror/internal/imagery"
	"tmmirror/internal/tm"
)

// Properties holds the enriched attributes of one project feature.
type Properties struct {
	ProjectID        int      `json:"projectId"`
	Name             string   `json:"name"`
	Status           string   `json:"status"`
	Imagery          string   `json:"imagery"`
	ImageryRaw       string   `json:"imageryRaw"`
	CountryTag       []string `json:"countryTag"`
	Country          string   `json:"country"`
	OrganisationName string   `json:"organisationName"`
	Created          string   `json:"created"`
	MappingTypes     []string `json:"mappingTypes"`
	AreaSqKm         *float64 `json:"areaSqKm"`
	CentroidLon      *float64 `json:"centroidLon"`
	CentroidLat      *float64 `json:"centroidLat"`
	Difficulty       string   `json:"difficulty"`
	ProjectPriority  string   `json:"projectPriority"`
	PercentMapped    *float64 `json:"percentMapped"`
	PercentValidated *float64 `json:"percentValidated"`
	LastUpdated      string   `json:"lastUpdated"`
}

// Feature is one GeoJSON feature. The geometry passes through untouched
// from the remote record.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties Properties      `json:"properties"`
}

// Collection is the combined artifact over all known projects.
type Collection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// SummaryEntry is the geometry-free projection of one feature.
type SummaryEntry struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Imagery      string    `json:"imagery"`
	ImageryRaw   string    `json:"imageryRaw"`
	Country      []string  `json:"country"`
	Org          string    `json:"org"`
	Created      string    `json:"created"`
	MappingTypes []string  `json:"mappingTypes"`
	AreaSqKm     *float64  `json:"areaSqKm"`
	Centroid     []float64 `json:"centroid"`
	PctMapped    *float64  `json:"pctMapped"`
	PctValidated *float64  `json:"pctValidated"`
	Difficulty   string    `json:"difficulty"`
	Priority     string    `json:"priority"`
}

// Summary is the denormalized index artifact.
type Summary struct {
	Generated     string         `json:"generated"`
	TotalProjects int            `json:"totalProjects"`
	Projects      []SummaryEntry `json:"projects"`
}

// Build assembles a feature from a project detail. Records whose
// area-of-interest geometry is missing or does not decode yield nil; a
// feature never carries a null or broken geometry.
func Build(d tm.Detail) *Feature {
	aoi := d.AreaOfInterest
	if !geometry.Valid(aoi) {
		return nil
	}

	countryTag := d.CountryTag
	if countryTag == nil {
		countryTag = []string{}
	}
	country := ""
	if len(countryTag) > 0 {
		country = countryTag[0]
	}
	mappingTypes := d.MappingTypes
	if mappingTypes == nil {
		mappingTypes = []string{}
	}

	props := Properties{
		ProjectID:        d.ProjectID,
		Name:             d.ProjectInfo.Name,
		Status:           d.Status,
		Imagery:          imagery.Normalize(d.Imagery),
		ImageryRaw:       d.Imagery,
		CountryTag:       countryTag,
		Country:          country,
		OrganisationName: d.OrganisationName,
		Created:          d.Created,
		MappingTypes:     mappingTypes,
		AreaSqKm:         geometry.AreaSqKm(aoi),
		Difficulty:       d.Difficulty,
		ProjectPriority:  d.ProjectPriority,
		PercentMapped:    d.PercentMapped,
		PercentValidated: d.PercentValidated,
		LastUpdated:      d.LastUpdated,
	}
	if c := geometry.Centroid(aoi); c != nil {
		props.CentroidLon = &c.Lon
		props.CentroidLat = &c.Lat
	}

	return &Feature{Type: "Feature", Geometry: aoi, Properties: props}
}

// BuildSummaryEntry projects a feature into its summary form. Optional
// fields propagate absence; nothing is computed here.
func BuildSummaryEntry(f Feature) SummaryEntry {
	p := f.Properties

	var centroid []float64
	if p.CentroidLon != nil && p.CentroidLat != nil {
		centroid = []float64{*p.CentroidLon, *p.CentroidLat}
	}

	created := p.Created
	if len(created) > 10 {
		created = created[:10]
	}

	return SummaryEntry{
		ID:           p.ProjectID,
		Name:         p.Name,
		Status:       p.Status,
		Imagery:      p.Imagery,
		ImageryRaw:   p.ImageryRaw,
		Country:      p.CountryTag,
		Org:          p.OrganisationName,
		Created:      created,
		MappingTypes: p.MappingTypes,
		AreaSqKm:     p.AreaSqKm,
		Centroid:     centroid,
		PctMapped:    p.PercentMapped,
		PctValidated: p.PercentValidated,
		Difficulty:   p.Difficulty,
		Priority:     p.ProjectPriority,
	}
}

// NewCollection sorts features ascending by project id and wraps them.
// Output order is independent of fetch order.
func NewCollection(features []Feature) Collection {
	sorted := make([]Feature, len(features))
	copy(sorted, features)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Properties.ProjectID < sorted[j].Properties.ProjectID
	})
	return Collection{Type: "FeatureCollection", Features: sorted}
}

// NewSummary derives the summary artifact, one entry per feature in
// collection order.
func NewSummary(c Collection, now time.Time) Summary {
	entries := make([]SummaryEntry, 0, len(c.Features))
	for _, f := range c.Features {
		entries = append(entries, BuildSummaryEntry(f))
	}
	return Summary{
		Generated:     now.UTC().Format("2006-01-02T15:04:05Z"),
		TotalProjects: len(entries),
		Projects:      entries,
	}
}

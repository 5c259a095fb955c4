package storage

import "strconv"

// Object keys of the mirror namespace.
const (
	KeyState      = "state.json"
	KeyCollection = "all_projects.geojson"
	KeySummary    = "projects_summary.json"
	KeyTiles      = "projects.pmtiles"

	// ProjectKeyPrefix is the namespace of per-project cached detail
	// blobs, mirroring the remote API path so the bucket can be served
	// as a static read replica of the API.
	ProjectKeyPrefix = "api/v2/projects/"
)

// ProjectKey returns the cached detail blob key for a project id.
func ProjectKey(id int) string {
	return ProjectKeyPrefix + strconv.Itoa(id)
}

// Content types written to the bucket.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeGeoJSON = "application/geo+json"
	ContentTypePMTiles = "application/vnd.pmtiles"
)

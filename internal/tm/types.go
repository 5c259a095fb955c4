package tm

import "encoding/json"

// ProjectSummary is one element of the paginated project listing. Only
// the fields the sync diff needs are decoded.
type ProjectSummary struct {
	ProjectID   int    `json:"projectId"`
	LastUpdated string `json:"lastUpdated"`
}

// ListPage is one page of the project listing.
type ListPage struct {
	Results    []ProjectSummary `json:"results"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination carries the page count the fetch loop terminates on.
type Pagination struct {
	Pages int `json:"pages"`
}

// ProjectInfo is the nested localized info block of a project detail.
type ProjectInfo struct {
	Name string `json:"name"`
}

// ProjectDetail is the decoded subset of a full project record.
type ProjectDetail struct {
	ProjectID        int             `json:"projectId"`
	Status           string          `json:"status"`
	Imagery          string          `json:"imagery"`
	AreaOfInterest   json.RawMessage `json:"areaOfInterest"`
	CountryTag       []string        `json:"countryTag"`
	OrganisationName string          `json:"organisationName"`
	ProjectInfo      ProjectInfo     `json:"projectInfo"`
	Created          string          `json:"created"`
	MappingTypes     []string        `json:"mappingTypes"`
	Difficulty       string          `json:"difficulty"`
	ProjectPriority  string          `json:"projectPriority"`
	PercentMapped    *float64        `json:"percentMapped"`
	PercentValidated *float64        `json:"percentValidated"`
	LastUpdated      string          `json:"lastUpdated"`
}

// Detail pairs the decoded record with the untouched response body, so
// the cached blob in storage stays byte-identical to the remote JSON.
type Detail struct {
	ProjectDetail
	Raw []byte
}

// DecodeDetail parses a raw detail body, remote or cached.
func DecodeDetail(raw []byte) (Detail, error) {
	var d ProjectDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return Detail{}, err
	}
	return Detail{ProjectDetail: d, Raw: raw}, nil
}

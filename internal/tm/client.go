// Package tm is a read-only client for the HOT Tasking Manager API:
// the paginated project listing and the per-project detail endpoint.
package tm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production Tasking Manager API.
const DefaultBaseURL = "https://tasking-manager-tm4-production-api.hotosm.org/api/v2"

// DefaultStatuses is the listing status filter applied by default.
const DefaultStatuses = "PUBLISHED,ARCHIVED"

const userAgent = "tm-cloud-native-mirror/1.0"

// Client calls the Tasking Manager API.
type Client struct {
	http     *http.Client
	baseURL  string
	statuses string
	log      *slog.Logger
}

// Options tune a Client; zero values fall back to the defaults above.
type Options struct {
	BaseURL  string
	Statuses string
	Timeout  time.Duration
}

// NewClient builds a client with a bounded request timeout.
func NewClient(opts Options, log *slog.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	statuses := strings.TrimSpace(opts.Statuses)
	if statuses == "" {
		statuses = DefaultStatuses
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  base,
		statuses: statuses,
		log:      log,
	}
}

// ListPage fetches one page of the project listing, newest first.
func (c *Client) ListPage(ctx context.Context, page int) (ListPage, error) {
	q := url.Values{}
	q.Set("orderBy", "last_updated")
	q.Set("orderByType", "DESC")
	q.Set("projectStatuses", c.statuses)
	q.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, c.baseURL+"/projects/?"+q.Encode())
	if err != nil {
		return ListPage{}, fmt.Errorf("list page %d: %w", page, err)
	}
	var lp ListPage
	if err := json.Unmarshal(body, &lp); err != nil {
		return ListPage{}, fmt.Errorf("list page %d: decode: %w", page, err)
	}
	return lp, nil
}

// AllProjects walks the listing until a page comes back empty or the
// reported page count is reached. Any page failure propagates.
func (c *Client) AllProjects(ctx context.Context) ([]ProjectSummary, error) {
	var all []ProjectSummary
	for page := 1; ; page++ {
		c.log.Info("fetching projects list page", "page", page)
		lp, err := c.ListPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(lp.Results) == 0 {
			break
		}
		all = append(all, lp.Results...)
		if page >= lp.Pagination.Pages {
			break
		}
	}
	c.log.Info("projects listed", "total", len(all))
	return all, nil
}

// Detail fetches the full record for one project.
func (c *Client) Detail(ctx context.Context, id int) (Detail, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/projects/%d/", c.baseURL, id))
	if err != nil {
		return Detail{}, fmt.Errorf("project %d: %w", id, err)
	}
	d, err := DecodeDetail(body)
	if err != nil {
		return Detail{}, fmt.Errorf("project %d: decode: %w", id, err)
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(firstLine(body)))
	}
	return body, nil
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

package contagionsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Contagion HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Run represents a stored simulation run.
type Run struct {
	ID              string   `json:"id"`
	Scenario        string   `json:"scenario"`
	Seed            uint64   `json:"seed"`
	Status          string   `json:"status"`
	Population      int      `json:"population"`
	EndTime         int64    `json:"end_time"`
	SpreadPeriod    int64    `json:"spread_period"`
	EventsProcessed int      `json:"events_processed"`
	Confirmed       int      `json:"confirmed"`
	Active          int      `json:"active"`
	Dead            int      `json:"dead"`
	R0              *float64 `json:"r0,omitempty"`
	Error           string   `json:"error,omitempty"`
	CreatedAt       string   `json:"created_at"`
	FinishedAt      string   `json:"finished_at,omitempty"`
	ElapsedMS       int64    `json:"elapsed_ms"`
}

type Artifact struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	CreatedAt string `json:"created_at"`
}

// RunDetail is a run with its stored artifacts.
type RunDetail struct {
	Run
	Artifacts []Artifact `json:"artifacts"`
}

// Observation is one statistics row of an observer.
type Observation struct {
	Observer           string `json:"observer"`
	ObservationID      int    `json:"observation_id"`
	Minute             int64  `json:"minute"`
	Wall               string `json:"wall"`
	Scope              string `json:"scope"`
	IsInfected         int    `json:"is_infected"`
	IsNotInfected      int    `json:"is_not_infected"`
	HasBeenInfected    int    `json:"has_been_infected"`
	HasNotBeenInfected int    `json:"has_not_been_infected"`
	Alive              int    `json:"alive"`
	Dead               int    `json:"dead"`
	Total              int    `json:"total"`
}

// Person is one person snapshot.
type Person struct {
	Observer      string  `json:"observer"`
	ObservationID int     `json:"observation_id"`
	Minute        int64   `json:"minute"`
	PersonID      int     `json:"person_id"`
	Age           int     `json:"age"`
	Health        float64 `json:"health"`
	Gender        string  `json:"gender"`
	Status        string  `json:"status"`
	Alive         bool    `json:"alive"`
	Profession    bool    `json:"profession"`
	TimesInfected int     `json:"times_infected"`
	Quarantined   bool    `json:"quarantined"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
}

// Event represents a run lifecycle log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRuns wraps run listings with a cursor.
type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Scenario string
	Status   string
	Limit    int
	Cursor   string
}

// ListRuns returns one page of runs, newest first.
func (c *Client) ListRuns(ctx context.Context, f RunFilter) (PaginatedRuns, error) {
	q := url.Values{}
	setIf(q, "scenario", f.Scenario)
	setIf(q, "status", f.Status)
	setIf(q, "cursor", f.Cursor)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var resp PaginatedRuns
	err := c.do(ctx, withQuery("v0/runs", q), &resp)
	return resp, err
}

// GetRun fetches a run by id or unique id prefix.
func (c *Client) GetRun(ctx context.Context, id string) (RunDetail, error) {
	var resp RunDetail
	err := c.do(ctx, runPath(id, ""), &resp)
	return resp, err
}

// Series returns the statistics observations of a run. Empty observer and
// scope select everything.
func (c *Client) Series(ctx context.Context, runID, observer, scope string) ([]Observation, error) {
	q := url.Values{}
	setIf(q, "observer", observer)
	setIf(q, "scope", scope)
	var resp struct {
		Items []Observation `json:"items"`
	}
	err := c.do(ctx, withQuery(runPath(runID, "series"), q), &resp)
	return resp.Items, err
}

// People returns person snapshots. A negative observation selects the latest
// snapshot of each observer.
func (c *Client) People(ctx context.Context, runID, observer string, observation, limit int) ([]Person, error) {
	q := url.Values{}
	setIf(q, "observer", observer)
	if observation >= 0 {
		q.Set("observation", strconv.Itoa(observation))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []Person `json:"items"`
	}
	err := c.do(ctx, withQuery(runPath(runID, "people"), q), &resp)
	return resp.Items, err
}

// Events returns lifecycle events of a run, newest first.
func (c *Client) Events(ctx context.Context, runID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	setIf(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, withQuery(runPath(runID, "events"), q), &resp)
	return resp, err
}

// Health reports whether the API answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "v0/health", nil)
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func runPath(id, sub string) string {
	p := "v0/runs/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func withQuery(p string, q url.Values) string {
	if len(q) == 0 {
		return p
	}
	return p + "?" + q.Encode()
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package server

import (
	"encoding/json"

	"contagion/internal/domain"
)

// Response payloads

type RunResponse struct {
	ID              string   `json:"id"`
	Scenario        string   `json:"scenario"`
	Seed            uint64   `json:"seed"`
	Status          string   `json:"status" enum:"running,completed,failed"`
	Population      int      `json:"population"`
	EndTime         int64    `json:"end_time" doc:"Simulation end in minutes"`
	SpreadPeriod    int64    `json:"spread_period" doc:"Minutes between virus spread events"`
	EventsProcessed int      `json:"events_processed"`
	Confirmed       int      `json:"confirmed"`
	Active          int      `json:"active"`
	Dead            int      `json:"dead"`
	R0              *float64 `json:"r0,omitempty"`
	Error           string   `json:"error,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	FinishedAt      string   `json:"finished_at,omitempty" format:"date-time"`
	ElapsedMS       int64    `json:"elapsed_ms"`
}

type ArtifactResponse struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type RunDetailResponse struct {
	RunResponse
	Artifacts []ArtifactResponse `json:"artifacts"`
}

type ObservationResponse struct {
	Observer           string `json:"observer"`
	ObservationID      int    `json:"observation_id"`
	Minute             int64  `json:"minute"`
	Wall               string `json:"wall" format:"date-time"`
	Scope              string `json:"scope" enum:"people,family"`
	IsInfected         int    `json:"is_infected"`
	IsNotInfected      int    `json:"is_not_infected"`
	HasBeenInfected    int    `json:"has_been_infected"`
	HasNotBeenInfected int    `json:"has_not_been_infected"`
	Alive              int    `json:"alive"`
	Dead               int    `json:"dead"`
	Total              int    `json:"total"`
}

type PersonResponse struct {
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

type CommunityResponse struct {
	Observer       string `json:"observer"`
	ObservationID  int    `json:"observation_id"`
	Minute         int64  `json:"minute"`
	CommunityType  string `json:"community_type"`
	CommunityIndex int    `json:"community_index"`
	OpenMask       string `json:"open_mask" doc:"One character per sub-community, 1 when open"`
	Closed         bool   `json:"closed"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	RunID      string         `json:"run_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedRuns struct {
	Items      []RunResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type seriesResponse struct {
	Items []ObservationResponse `json:"items"`
}

type peopleResponse struct {
	Items []PersonResponse `json:"items"`
}

type communitiesResponse struct {
	Items []CommunityResponse `json:"items"`
}

// Conversion helpers

func runResponse(r domain.Run) RunResponse {
	return RunResponse{
		ID:              r.ID,
		Scenario:        r.Scenario,
		Seed:            uint64(r.Seed),
		Status:          r.Status,
		Population:      r.Population,
		EndTime:         r.EndTime,
		SpreadPeriod:    r.SpreadPeriod,
		EventsProcessed: r.EventsProcessed,
		Confirmed:       r.Confirmed,
		Active:          r.Active,
		Dead:            r.Dead,
		R0:              r.R0,
		Error:           stringOrEmpty(r.Error),
		CreatedAt:       r.CreatedAt,
		FinishedAt:      stringOrEmpty(r.FinishedAt),
		ElapsedMS:       r.ElapsedMS,
	}
}

func artifactResponse(a domain.Artifact) ArtifactResponse {
	return ArtifactResponse{Name: a.Name, Location: a.Location, CreatedAt: a.CreatedAt}
}

func observationResponse(o domain.Observation) ObservationResponse {
	return ObservationResponse{
		Observer:           o.Observer,
		ObservationID:      o.ObservationID,
		Minute:             o.Minute,
		Wall:               o.Wall,
		Scope:              o.Scope,
		IsInfected:         o.IsInfected,
		IsNotInfected:      o.IsNotInfected,
		HasBeenInfected:    o.HasBeenInfected,
		HasNotBeenInfected: o.HasNotBeenInfected,
		Alive:              o.Alive,
		Dead:               o.Dead,
		Total:              o.Total,
	}
}

func personResponse(p domain.PersonSnapshot) PersonResponse {
	return PersonResponse{
		Observer:      p.Observer,
		ObservationID: p.ObservationID,
		Minute:        p.Minute,
		PersonID:      p.PersonID,
		Age:           p.Age,
		Health:        p.Health,
		Gender:        p.Gender,
		Status:        p.Status,
		Alive:         p.Alive,
		Profession:    p.Profession,
		TimesInfected: p.TimesInfected,
		Quarantined:   p.Quarantined,
		X:             p.X,
		Y:             p.Y,
	}
}

func communityResponse(c domain.CommunitySnapshot) CommunityResponse {
	return CommunityResponse{
		Observer:       c.Observer,
		ObservationID:  c.ObservationID,
		Minute:         c.Minute,
		CommunityType:  c.CommunityType,
		CommunityIndex: c.CommunityIndex,
		OpenMask:       c.OpenMask,
		Closed:         c.Closed,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		RunID:      stringOrEmpty(e.RunID),
		EntityKind: e.EntityKind,
		EntityID:   stringOrEmpty(e.EntityID),
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

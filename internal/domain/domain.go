package domain

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

type Run struct {
	ID              string   `db:"id" json:"id"`
	Scenario        string   `db:"scenario" json:"scenario"`
	Seed            int64    `db:"seed" json:"seed"`
	Status          string   `db:"status" json:"status" enum:"running,completed,failed"`
	Population      int      `db:"population" json:"population"`
	EndTime         int64    `db:"end_time" json:"end_time"`
	SpreadPeriod    int64    `db:"spread_period" json:"spread_period"`
	EventsProcessed int      `db:"events_processed" json:"events_processed"`
	Confirmed       int      `db:"confirmed" json:"confirmed"`
	Active          int      `db:"active" json:"active"`
	Dead            int      `db:"dead" json:"dead"`
	R0              *float64 `db:"r0" json:"r0,omitempty"`
	Error           *string  `db:"error" json:"error,omitempty"`
	ScenarioYAML    string   `db:"scenario_yaml" json:"-"`
	CreatedAt       string   `db:"created_at" json:"created_at" format:"date-time"`
	FinishedAt      *string  `db:"finished_at" json:"finished_at,omitempty" format:"date-time"`
	ElapsedMS       int64    `db:"elapsed_ms" json:"elapsed_ms"`
}

// Observation is one statistics row of an observer.
type Observation struct {
	ID                 int64  `db:"id" json:"-"`
	RunID              string `db:"run_id" json:"run_id"`
	Observer           string `db:"observer" json:"observer"`
	ObservationID      int    `db:"observation_id" json:"observation_id"`
	Minute             int64  `db:"minute" json:"minute"`
	Wall               string `db:"wall" json:"wall" format:"date-time"`
	Scope              string `db:"scope" json:"scope" enum:"people,family"`
	IsInfected         int    `db:"is_infected" json:"is_infected"`
	IsNotInfected      int    `db:"is_not_infected" json:"is_not_infected"`
	HasBeenInfected    int    `db:"has_been_infected" json:"has_been_infected"`
	HasNotBeenInfected int    `db:"has_not_been_infected" json:"has_not_been_infected"`
	Alive              int    `db:"alive" json:"alive"`
	Dead               int    `db:"dead" json:"dead"`
	Total              int    `db:"total" json:"total"`
}

type PersonSnapshot struct {
	RunID         string  `db:"run_id" json:"run_id"`
	Observer      string  `db:"observer" json:"observer"`
	ObservationID int     `db:"observation_id" json:"observation_id"`
	Minute        int64   `db:"minute" json:"minute"`
	PersonID      int     `db:"person_id" json:"person_id"`
	Age           int     `db:"age" json:"age"`
	Health        float64 `db:"health" json:"health"`
	Gender        string  `db:"gender" json:"gender"`
	Status        string  `db:"status" json:"status"`
	Alive         bool    `db:"alive" json:"alive"`
	Profession    bool    `db:"profession" json:"profession"`
	TimesInfected int     `db:"times_infected" json:"times_infected"`
	Quarantined   bool    `db:"quarantined" json:"quarantined"`
	X             float64 `db:"x" json:"x"`
	Y             float64 `db:"y" json:"y"`
}

type CommunitySnapshot struct {
	RunID          string `db:"run_id" json:"run_id"`
	Observer       string `db:"observer" json:"observer"`
	ObservationID  int    `db:"observation_id" json:"observation_id"`
	Minute         int64  `db:"minute" json:"minute"`
	CommunityType  string `db:"community_type" json:"community_type"`
	CommunityIndex int    `db:"community_index" json:"community_index"`
	OpenMask       string `db:"open_mask" json:"open_mask"`
	Closed         bool   `db:"closed" json:"closed"`
}

type Artifact struct {
	RunID     string `db:"run_id" json:"run_id"`
	Name      string `db:"name" json:"name"`
	Location  string `db:"location" json:"location"`
	CreatedAt string `db:"created_at" json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64   `db:"id" json:"id"`
	TS         string  `db:"ts" json:"ts" format:"date-time"`
	Type       string  `db:"type" json:"type"`
	RunID      *string `db:"run_id" json:"run_id,omitempty"`
	EntityKind string  `db:"entity_kind" json:"entity_kind"`
	EntityID   *string `db:"entity_id" json:"entity_id,omitempty"`
	Payload    string  `db:"payload_json" json:"payload_json"`
}

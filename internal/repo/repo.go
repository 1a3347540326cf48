package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"contagion/internal/domain"
)

type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = errors.New("not found")

const runColumns = `id,scenario,seed,status,population,end_time,spread_period,events_processed,confirmed,active,dead,r0,error,scenario_yaml,created_at,finished_at,elapsed_ms`

func (r Repo) InsertRunTx(ctx context.Context, tx *sqlx.Tx, run domain.Run) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO runs(`+runColumns+`) VALUES (
		:id,:scenario,:seed,:status,:population,:end_time,:spread_period,:events_processed,:confirmed,:active,:dead,:r0,:error,:scenario_yaml,:created_at,:finished_at,:elapsed_ms)`, run)
	return err
}

// FinishRunTx stores the outcome columns of run.
func (r Repo) FinishRunTx(ctx context.Context, tx *sqlx.Tx, run domain.Run) error {
	res, err := tx.NamedExecContext(ctx, `UPDATE runs SET status=:status,population=:population,events_processed=:events_processed,
		confirmed=:confirmed,active=:active,dead=:dead,r0=:r0,error=:error,finished_at=:finished_at,elapsed_ms=:elapsed_ms WHERE id=:id`, run)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	var run domain.Run
	err := r.DB.GetContext(ctx, &run, r.DB.Rebind(`SELECT `+runColumns+` FROM runs WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	return run, err
}

// ResolveRun accepts a full run id or a unique prefix of one.
func (r Repo) ResolveRun(ctx context.Context, idOrPrefix string) (domain.Run, error) {
	run, err := r.GetRun(ctx, idOrPrefix)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return run, err
	}
	var ids []string
	if err := r.DB.SelectContext(ctx, &ids, r.DB.Rebind(`SELECT id FROM runs WHERE id LIKE ? ORDER BY id LIMIT 2`), idOrPrefix+"%"); err != nil {
		return run, err
	}
	switch len(ids) {
	case 0:
		return run, ErrNotFound
	case 1:
		return r.GetRun(ctx, ids[0])
	}
	return run, fmt.Errorf("run prefix %s is ambiguous", idOrPrefix)
}

type RunFilters struct {
	Scenario        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListRuns returns runs newest first, after the cursor when one is given.
func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Scenario != "" {
		clauses = append(clauses, "scenario=?")
		args = append(args, f.Scenario)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var res []domain.Run
	if err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return res, nil
}

// batchRows keeps multi-row inserts under the SQLite and Postgres bind limits.
const batchRows = 1000

func insertBatches[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for len(rows) > 0 {
		n := min(len(rows), batchRows)
		if _, err := tx.NamedExecContext(ctx, query, rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return nil
}

func (r Repo) InsertObservationsTx(ctx context.Context, tx *sqlx.Tx, obs []domain.Observation) error {
	return insertBatches(ctx, tx, `INSERT INTO observations(run_id,observer,observation_id,minute,wall,scope,
		is_infected,is_not_infected,has_been_infected,has_not_been_infected,alive,dead,total) VALUES (
		:run_id,:observer,:observation_id,:minute,:wall,:scope,
		:is_infected,:is_not_infected,:has_been_infected,:has_not_been_infected,:alive,:dead,:total)`, obs)
}

func (r Repo) InsertPeopleTx(ctx context.Context, tx *sqlx.Tx, people []domain.PersonSnapshot) error {
	return insertBatches(ctx, tx, `INSERT INTO people_snapshots(run_id,observer,observation_id,minute,person_id,age,health,
		gender,status,alive,profession,times_infected,quarantined,x,y) VALUES (
		:run_id,:observer,:observation_id,:minute,:person_id,:age,:health,
		:gender,:status,:alive,:profession,:times_infected,:quarantined,:x,:y)`, people)
}

func (r Repo) InsertCommunitiesTx(ctx context.Context, tx *sqlx.Tx, comms []domain.CommunitySnapshot) error {
	return insertBatches(ctx, tx, `INSERT INTO community_snapshots(run_id,observer,observation_id,minute,community_type,
		community_index,open_mask,closed) VALUES (
		:run_id,:observer,:observation_id,:minute,:community_type,:community_index,:open_mask,:closed)`, comms)
}

type SeriesFilters struct {
	RunID    string
	Observer string
	Scope    string
}

// Series returns statistics observations in time order.
func (r Repo) Series(ctx context.Context, f SeriesFilters) ([]domain.Observation, error) {
	clauses := []string{"run_id=?"}
	args := []any{f.RunID}
	if f.Observer != "" {
		clauses = append(clauses, "observer=?")
		args = append(args, f.Observer)
	}
	if f.Scope != "" {
		clauses = append(clauses, "scope=?")
		args = append(args, f.Scope)
	}
	query := `SELECT id,run_id,observer,observation_id,minute,wall,scope,is_infected,is_not_infected,has_been_infected,
		has_not_been_infected,alive,dead,total FROM observations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY minute, observer, id`
	var res []domain.Observation
	if err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return res, nil
}

type SnapshotFilters struct {
	RunID         string
	Observer      string
	ObservationID *int
	Limit         int
}

func snapshotWhere(f SnapshotFilters) (string, []any) {
	clauses := []string{"run_id=?"}
	args := []any{f.RunID}
	if f.Observer != "" {
		clauses = append(clauses, "observer=?")
		args = append(args, f.Observer)
	}
	if f.ObservationID != nil {
		clauses = append(clauses, "observation_id=?")
		args = append(args, *f.ObservationID)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// People returns person snapshots. Without an observation id it returns the
// latest observation of each observer.
func (r Repo) People(ctx context.Context, f SnapshotFilters) ([]domain.PersonSnapshot, error) {
	where, args := snapshotWhere(f)
	if f.ObservationID == nil {
		where += ` AND observation_id = (SELECT MAX(p2.observation_id) FROM people_snapshots p2 WHERE p2.run_id=people_snapshots.run_id AND p2.observer=people_snapshots.observer)`
	}
	query := `SELECT run_id,observer,observation_id,minute,person_id,age,health,gender,status,alive,profession,times_infected,
		quarantined,x,y FROM people_snapshots` + where + ` ORDER BY observer, observation_id, person_id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var res []domain.PersonSnapshot
	if err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (r Repo) Communities(ctx context.Context, f SnapshotFilters) ([]domain.CommunitySnapshot, error) {
	where, args := snapshotWhere(f)
	query := `SELECT run_id,observer,observation_id,minute,community_type,community_index,open_mask,closed
		FROM community_snapshots` + where + ` ORDER BY observer, observation_id, community_type, community_index`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var res []domain.CommunitySnapshot
	if err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (r Repo) UpsertArtifactTx(ctx context.Context, tx *sqlx.Tx, a domain.Artifact) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM artifacts WHERE run_id=? AND name=?`), a.RunID, a.Name); err != nil {
		return err
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO artifacts(run_id,name,location,created_at) VALUES (:run_id,:name,:location,:created_at)`, a)
	return err
}

func (r Repo) ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error) {
	var res []domain.Artifact
	err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(`SELECT run_id,name,location,created_at FROM artifacts WHERE run_id=? ORDER BY name`), runID)
	return res, err
}

const eventColumns = `id,ts,type,run_id,entity_kind,entity_id,payload_json`

// LatestEvents returns events newest first, before cursor when it is set.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, runID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if runID != "" {
		clauses = append(clauses, "run_id=?")
		args = append(args, runID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	var res []domain.Event
	if err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return res, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	err := r.DB.SelectContext(ctx, &res, r.DB.Rebind(`SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`), cursor, limit)
	return res, err
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.GetContext(ctx, &id, `SELECT COALESCE(MAX(id),0) FROM events`)
	return id, err
}

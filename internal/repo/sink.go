package repo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"contagion/internal/domain"
	"contagion/internal/engine"
	"contagion/internal/observe"
)

const flushThreshold = 512

type sinkItem struct {
	obs    *domain.Observation
	people []domain.PersonSnapshot
	comms  []domain.CommunitySnapshot
	flush  chan error
}

// ObservationSink stores the observations of one run. Records are queued on
// a buffered channel and written in batches by a background goroutine; the
// first write error is reported by Flush and Close.
type ObservationSink struct {
	repo   Repo
	runID  string
	logger *log.Logger
	items  chan sinkItem
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu   sync.Mutex
	err     error
	written int
}

var _ observe.Sink = (*ObservationSink)(nil)

// NewObservationSink starts the writer goroutine. Close must be called to
// stop it.
func NewObservationSink(r Repo, runID string, buffer int, logger *log.Logger) *ObservationSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &ObservationSink{
		repo:   r,
		runID:  runID,
		logger: logger,
		items:  make(chan sinkItem, buffer),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *ObservationSink) send(it sinkItem) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.items <- it
	return true
}

func (s *ObservationSink) RecordStatistics(r observe.StatisticsRecord) {
	row := ObservationRow(s.runID, r)
	if !s.send(sinkItem{obs: &row}) {
		s.logger.Warn("observation dropped after close", "observer", r.Observer)
	}
}

func (s *ObservationSink) RecordPeople(rs []observe.PersonRecord) {
	rows := make([]domain.PersonSnapshot, len(rs))
	for i, r := range rs {
		rows[i] = PersonRow(s.runID, r)
	}
	if !s.send(sinkItem{people: rows}) {
		s.logger.Warn("person snapshots dropped after close", "count", len(rows))
	}
}

func (s *ObservationSink) RecordCommunities(rs []observe.CommunityRecord) {
	rows := make([]domain.CommunitySnapshot, len(rs))
	for i, r := range rs {
		rows[i] = CommunityRow(s.runID, r)
	}
	if !s.send(sinkItem{comms: rows}) {
		s.logger.Warn("community snapshots dropped after close", "count", len(rows))
	}
}

// Flush waits until everything recorded so far is written.
func (s *ObservationSink) Flush() error {
	reply := make(chan error, 1)
	if !s.send(sinkItem{flush: reply}) {
		return s.Err()
	}
	return <-reply
}

// Close writes what is pending and stops the writer.
func (s *ObservationSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.items)
	}
	s.mu.Unlock()
	<-s.done
	return s.Err()
}

func (s *ObservationSink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Written is the number of rows stored so far.
func (s *ObservationSink) Written() int {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.written
}

type batch struct {
	obs    []domain.Observation
	people []domain.PersonSnapshot
	comms  []domain.CommunitySnapshot
}

func (b *batch) size() int { return len(b.obs) + len(b.people) + len(b.comms) }

func (s *ObservationSink) loop() {
	defer close(s.done)
	var pending batch
	write := func() {
		n := pending.size()
		if n == 0 {
			return
		}
		err := s.write(pending)
		s.errMu.Lock()
		if err != nil && s.err == nil {
			s.err = err
			s.logger.Error("observation write failed", "run", s.runID, "err", err)
		}
		if err == nil {
			s.written += n
		}
		s.errMu.Unlock()
		pending = batch{}
	}
	for it := range s.items {
		if it.flush != nil {
			write()
			it.flush <- s.Err()
			continue
		}
		if it.obs != nil {
			pending.obs = append(pending.obs, *it.obs)
		}
		pending.people = append(pending.people, it.people...)
		pending.comms = append(pending.comms, it.comms...)
		if pending.size() >= flushThreshold {
			write()
		}
	}
	write()
}

func (s *ObservationSink) write(b batch) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	tx, err := s.repo.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = errors.Join(
		s.repo.InsertObservationsTx(ctx, tx, b.obs),
		s.repo.InsertPeopleTx(ctx, tx, b.people),
		s.repo.InsertCommunitiesTx(ctx, tx, b.comms),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ObservationRow converts a statistics record to its stored form.
func ObservationRow(runID string, r observe.StatisticsRecord) domain.Observation {
	return domain.Observation{
		RunID:              runID,
		Observer:           r.Observer,
		ObservationID:      r.ObservationID,
		Minute:             int64(r.Minute),
		Wall:               r.Wall.UTC().Format(time.RFC3339),
		Scope:              r.Scope,
		IsInfected:         r.Counts.Get(engine.IsInfected),
		IsNotInfected:      r.Counts.Get(engine.IsNotInfected),
		HasBeenInfected:    r.Counts.Get(engine.HasBeenInfected),
		HasNotBeenInfected: r.Counts.Get(engine.HasNotBeenInfected),
		Alive:              r.Counts.Get(engine.Alive),
		Dead:               r.Counts.Get(engine.Dead),
		Total:              r.Counts.Get(engine.All),
	}
}

func PersonRow(runID string, r observe.PersonRecord) domain.PersonSnapshot {
	return domain.PersonSnapshot{
		RunID:         runID,
		Observer:      r.Observer,
		ObservationID: r.ObservationID,
		Minute:        int64(r.Minute),
		PersonID:      r.PersonID,
		Age:           r.Age,
		Health:        r.Health,
		Gender:        r.Gender,
		Status:        r.Status,
		Alive:         r.Alive,
		Profession:    r.Profession,
		TimesInfected: r.TimesInfected,
		Quarantined:   r.Quarantined,
		X:             r.X,
		Y:             r.Y,
	}
}

// CommunityRow converts a community record; the open mask is stored as a
// string of 1 and 0 per sub-community.
func CommunityRow(runID string, r observe.CommunityRecord) domain.CommunitySnapshot {
	var mask strings.Builder
	for _, open := range r.Open {
		if open {
			mask.WriteByte('1')
		} else {
			mask.WriteByte('0')
		}
	}
	return domain.CommunitySnapshot{
		RunID:          runID,
		Observer:       r.Observer,
		ObservationID:  r.ObservationID,
		Minute:         int64(r.Minute),
		CommunityType:  r.Type,
		CommunityIndex: r.Index,
		OpenMask:       mask.String(),
		Closed:         r.Closed,
	}
}

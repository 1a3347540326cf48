package observe

import (
	"slices"
	"sync"
)

// Sink receives observations. Record calls do not block the simulation and
// report failures through Flush.
type Sink interface {
	RecordStatistics(StatisticsRecord)
	RecordPeople([]PersonRecord)
	RecordCommunities([]CommunityRecord)
	Flush() error
}

// MemorySink keeps every record in memory.
type MemorySink struct {
	mu          sync.Mutex
	statistics  []StatisticsRecord
	people      []PersonRecord
	communities []CommunityRecord
	flushes     int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) RecordStatistics(r StatisticsRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statistics = append(m.statistics, r)
}

func (m *MemorySink) RecordPeople(rs []PersonRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = append(m.people, rs...)
}

func (m *MemorySink) RecordCommunities(rs []CommunityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communities = append(m.communities, rs...)
}

func (m *MemorySink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Statistics returns the statistics records of one scope in arrival order.
func (m *MemorySink) Statistics(scope string) []StatisticsRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatisticsRecord
	for _, r := range m.statistics {
		if r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemorySink) People() []PersonRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.people)
}

func (m *MemorySink) Communities() []CommunityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.communities)
}

func (m *MemorySink) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Tee fans records out to several sinks.
type Tee []Sink

func (t Tee) RecordStatistics(r StatisticsRecord) {
	for _, s := range t {
		s.RecordStatistics(r)
	}
}

func (t Tee) RecordPeople(rs []PersonRecord) {
	for _, s := range t {
		s.RecordPeople(rs)
	}
}

func (t Tee) RecordCommunities(rs []CommunityRecord) {
	for _, s := range t {
		s.RecordCommunities(rs)
	}
}

func (t Tee) Flush() error {
	var first error
	for _, s := range t {
		if err := s.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

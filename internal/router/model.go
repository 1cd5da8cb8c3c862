package router

import (
	"math"
	"sort"
	"time"
)

// ModelVersion is the only snapshot version Import accepts.
const ModelVersion = "1.0"

// Model is the persisted form of a router's learned state.
type Model struct {
	Version  string                `json:"version"`
	Config   ModelConfig           `json:"config"`
	QTable   map[string]ModelEntry `json:"qTable"`
	Stats    ModelStats            `json:"stats"`
	Metadata ModelMetadata         `json:"metadata"`
}

// ModelConfig is the subset of router configuration stored with a model.
type ModelConfig struct {
	Routes             []string  `json:"routes"`
	LearningRate       float64   `json:"learningRate"`
	Gamma              float64   `json:"gamma"`
	ExplorationInitial float64   `json:"explorationInitial"`
	ExplorationFinal   float64   `json:"explorationFinal"`
	ExplorationDecay   int       `json:"explorationDecay"`
	DecayType          DecayType `json:"decayType"`
	MaxStates          int       `json:"maxStates"`
}

// ModelEntry is one persisted Q-table row.
type ModelEntry struct {
	Values     []float64 `json:"values"`
	Visits     uint32    `json:"visits"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// ModelStats holds learner counters.
type ModelStats struct {
	StepCount   uint64  `json:"stepCount"`
	UpdateCount uint64  `json:"updateCount"`
	AvgTDError  float64 `json:"avgTdError"`
	Epsilon     float64 `json:"epsilon"`
}

// ModelMetadata describes the snapshot itself.
type ModelMetadata struct {
	SavedAt          time.Time `json:"savedAt"`
	TotalExperiences uint64    `json:"totalExperiences"`
	SnapshotID       string    `json:"snapshotId"`
}

// validate checks m against the configured route labels.
func (m *Model) validate(routes []string) error {
	if m == nil {
		return &ModelFormatError{Reason: "model is nil"}
	}
	if m.Version != ModelVersion {
		return formatErr("version", "unsupported version %q, want %q", m.Version, ModelVersion)
	}
	if len(m.Config.Routes) != len(routes) {
		return formatErr("config.routes", "has %d routes, router has %d", len(m.Config.Routes), len(routes))
	}
	for i, r := range routes {
		if m.Config.Routes[i] != r {
			return formatErr("config.routes", "route %d is %q, router has %q", i, m.Config.Routes[i], r)
		}
	}
	if !finite(m.Stats.AvgTDError) || m.Stats.AvgTDError < 0 {
		return formatErr("stats.avgTdError", "must be finite and non-negative, got %v", m.Stats.AvgTDError)
	}
	if !finite(m.Stats.Epsilon) || m.Stats.Epsilon < 0 || m.Stats.Epsilon > 1 {
		return formatErr("stats.epsilon", "must be in [0, 1], got %v", m.Stats.Epsilon)
	}
	for key, e := range m.QTable {
		if len(e.Values) != len(routes) {
			return formatErr("qTable."+key, "has %d values, want %d", len(e.Values), len(routes))
		}
		for i, v := range e.Values {
			if !finite(v) {
				return formatErr("qTable."+key, "value %d is not finite", i)
			}
		}
	}
	return nil
}

// toTable builds a table from a validated model. Recency order follows
// LastUpdate, with keys breaking ties.
func (m *Model) toTable(numActions int) *qTable {
	keys := make([]string, 0, len(m.QTable))
	for k := range m.QTable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.QTable[keys[i]].LastUpdate, m.QTable[keys[j]].LastUpdate
		if !a.Equal(b) {
			return a.Before(b)
		}
		return keys[i] < keys[j]
	})

	t := newQTable(numActions)
	for _, k := range keys {
		src := m.QTable[k]
		values := make([]float64, numActions)
		copy(values, src.Values)
		t.put(k, &QEntry{Values: values, Visits: src.Visits, LastUpdate: src.LastUpdate})
	}
	return t
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

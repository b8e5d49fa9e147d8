package facedb

import (
	"sort"

	"github.com/your-org/classcam/internal/vision"
)

// MatcherConfig tunes identity matching.
type MatcherConfig struct {
	Threshold       float32 // similarity must be strictly greater
	IndexMinSize    int     // opt-in approximate index from this many identities, 0 scans every centroid
	IndexCandidates int
}

// DefaultMatcherConfig returns the standard matching parameters.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{Threshold: 0.3, IndexCandidates: 8}
}

// Match is the outcome of an identity lookup. Similarity is 0 when not Found.
type Match struct {
	Found      bool
	PersonID   string
	Name       string
	ExternalID string
	Section    string
	Similarity float32
}

// Matcher compares query embeddings with enrolled centroids.
type Matcher struct {
	db    *Database
	cfg   MatcherConfig
	index *centroidIndex
}

// NewMatcher creates a matcher reading from db.
func NewMatcher(db *Database, cfg MatcherConfig) *Matcher {
	if cfg.IndexCandidates <= 0 {
		cfg.IndexCandidates = DefaultMatcherConfig().IndexCandidates
	}
	return &Matcher{db: db, cfg: cfg}
}

// Threshold returns the recognition threshold.
func (m *Matcher) Threshold() float32 {
	return m.cfg.Threshold
}

// Match returns the best identity whose centroid similarity is strictly above
// the threshold, optionally restricted to one section. Ties keep the identity
// met first in scan order.
func (m *Matcher) Match(embedding []float32, sectionFilter string) Match {
	if len(embedding) == 0 {
		return Match{}
	}

	if sectionFilter == "" && m.useIndex() {
		return m.matchIndexed(embedding)
	}

	return m.scan(embedding, sectionFilter)
}

// scan compares embedding with every centroid in scan order.
func (m *Matcher) scan(embedding []float32, sectionFilter string) Match {
	var best Match
	bestSim := m.cfg.Threshold
	m.db.Each(sectionFilter, func(ident *Identity) bool {
		if sim := vision.CosineSimilarity(embedding, ident.Centroid); sim > bestSim {
			bestSim = sim
			best = matchFor(ident, sim)
		}
		return true
	})
	return best
}

// TopK returns up to k candidates ordered by similarity, ignoring the threshold.
func (m *Matcher) TopK(embedding []float32, sectionFilter string, k int) []Match {
	var all []Match
	m.db.Each(sectionFilter, func(ident *Identity) bool {
		all = append(all, matchFor(ident, vision.CosineSimilarity(embedding, ident.Centroid)))
		return true
	})
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Similarity > all[j].Similarity
	})
	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all
}

func (m *Matcher) useIndex() bool {
	return m.cfg.IndexMinSize > 0 && m.db.Len() >= m.cfg.IndexMinSize
}

func (m *Matcher) matchIndexed(embedding []float32) Match {
	if m.index == nil || m.index.version != m.db.Version() {
		m.index = buildCentroidIndex(m.db)
	}
	if !m.index.accepts(embedding) {
		return m.scan(embedding, "")
	}

	var best Match
	bestSim := m.cfg.Threshold
	bestPos := -1
	for _, pos := range m.index.search(embedding, m.cfg.IndexCandidates) {
		ident := m.index.entries[pos]
		sim := vision.CosineSimilarity(embedding, ident.Centroid)
		if sim > bestSim || (sim == bestSim && bestPos >= 0 && pos < bestPos) {
			bestSim, bestPos = sim, pos
			best = matchFor(ident, sim)
		}
	}
	return best
}

func matchFor(ident *Identity, sim float32) Match {
	return Match{
		Found:      true,
		PersonID:   ident.PersonID,
		Name:       ident.Name,
		ExternalID: ident.ExternalID,
		Section:    ident.Section,
		Similarity: sim,
	}
}

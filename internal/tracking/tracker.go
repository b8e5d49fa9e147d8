package tracking

import (
	"sync"

	"github.com/your-org/classcam/internal/vision"
)

// Algorithm selects how detections are assigned to tracks.
type Algorithm string

const (
	AlgorithmGreedy    Algorithm = "greedy"
	AlgorithmHungarian Algorithm = "hungarian"
)

// Config tunes association and smoothing.
type Config struct {
	MaxDisappeared  int
	MatchThreshold  float32
	IoUWeight       float32
	EmbeddingWeight float32
	Smoothing       float32 // alpha for bbox and embedding updates
	Algorithm       Algorithm
}

// DefaultConfig returns the standard association parameters.
func DefaultConfig() Config {
	return Config{
		MaxDisappeared:  30,
		MatchThreshold:  0.3,
		IoUWeight:       0.7,
		EmbeddingWeight: 0.3,
		Smoothing:       0.3,
		Algorithm:       AlgorithmGreedy,
	}
}

// Tracker keeps the active tracks of one session and associates each frame's
// detections with them.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	tracks []*Track // insertion order
	frame  int
}

// NewTracker creates an empty tracker. Zero config fields fall back to defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.MaxDisappeared <= 0 {
		cfg.MaxDisappeared = def.MaxDisappeared
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}
	if cfg.IoUWeight == 0 && cfg.EmbeddingWeight == 0 {
		cfg.IoUWeight, cfg.EmbeddingWeight = def.IoUWeight, def.EmbeddingWeight
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	return &Tracker{cfg: cfg}
}

// Update associates detections with tracks, creates tracks for unmatched
// detections and ages out unmatched tracks. The returned slice holds, for each
// detection in order, the id of the track it now belongs to.
func (t *Tracker) Update(dets []vision.Detection) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame++
	ids := make([]int, len(dets))

	if len(t.tracks) == 0 {
		for i := range dets {
			ids[i] = t.spawn(dets[i])
		}
		return ids
	}

	if len(dets) == 0 {
		for _, tr := range t.tracks {
			tr.Disappeared++
		}
		t.prune()
		return ids
	}

	scores := t.scoreMatrix(dets)
	var pairs [][2]int
	if t.cfg.Algorithm == AlgorithmHungarian {
		pairs = assignHungarian(scores, t.cfg.MatchThreshold)
	} else {
		pairs = assignGreedy(scores, t.cfg.MatchThreshold)
	}

	matchedTrack := make([]bool, len(t.tracks))
	usedDet := make([]bool, len(dets))
	for _, p := range pairs {
		tr, det := t.tracks[p[0]], dets[p[1]]
		tr.BBox = vision.BlendBox(tr.BBox, det.BBox, t.cfg.Smoothing)
		tr.Embedding = vision.BlendVector(tr.Embedding, det.Embedding, t.cfg.Smoothing)
		tr.LastSeen = t.frame
		tr.Age = tr.LastSeen - tr.FirstSeen
		tr.Disappeared = 0
		matchedTrack[p[0]] = true
		usedDet[p[1]] = true
		ids[p[1]] = tr.ID
	}

	for i, tr := range t.tracks {
		if !matchedTrack[i] {
			tr.Disappeared++
		}
	}
	t.prune()

	for i := range dets {
		if !usedDet[i] {
			ids[i] = t.spawn(dets[i])
		}
	}
	return ids
}

// scoreMatrix is tracks x detections of iouWeight*IoU + embWeight*(1-cosineDistance).
func (t *Tracker) scoreMatrix(dets []vision.Detection) [][]float32 {
	m := make([][]float32, len(t.tracks))
	for i, tr := range t.tracks {
		m[i] = make([]float32, len(dets))
		for j, d := range dets {
			m[i][j] = t.cfg.IoUWeight*vision.IoU(tr.BBox, d.BBox) +
				t.cfg.EmbeddingWeight*(1-vision.CosineDistance(tr.Embedding, d.Embedding))
		}
	}
	return m
}

func (t *Tracker) spawn(d vision.Detection) int {
	var emb []float32
	if len(d.Embedding) > 0 {
		emb = vision.Normalize(append([]float32(nil), d.Embedding...))
	}
	tr := &Track{
		ID:        nextTrackID(),
		BBox:      d.BBox,
		Embedding: emb,
		FirstSeen: t.frame,
		LastSeen:  t.frame,
	}
	t.tracks = append(t.tracks, tr)
	return tr.ID
}

// prune drops tracks whose disappeared counter exceeds the maximum, keeping order.
func (t *Tracker) prune() {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.Disappeared <= t.cfg.MaxDisappeared {
			kept = append(kept, tr)
		}
	}
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = kept
}

// ActiveTracks returns copies of the current tracks in insertion order.
func (t *Tracker) ActiveTracks() []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = tr.clone()
	}
	return out
}

// Track returns a copy of one active track.
func (t *Tracker) Track(id int) (Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tr := t.find(id); tr != nil {
		return tr.clone(), true
	}
	return Track{}, false
}

// SetIdentity caches an identity on an active track and bumps its recognition count.
func (t *Tracker) SetIdentity(id int, ident Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.find(id)
	if tr == nil {
		return false
	}
	tr.Identity = ident
	tr.RecognitionCount++
	return true
}

// Len returns the number of active tracks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Clear drops every track. Ids are not reused afterwards.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = nil
}

func (t *Tracker) find(id int) *Track {
	for _, tr := range t.tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

package tracking

import (
	"math"
	"testing"

	"github.com/your-org/classcam/internal/vision"
)

func det(x, y, size float32, emb ...float32) vision.Detection {
	return vision.Detection{
		BBox:       [4]float32{x, y, x + size, y + size},
		Embedding:  emb,
		Confidence: 0.9,
	}
}

func TestTracker_ContinuityAcrossFrames(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	var id int
	for frame := 0; frame < 20; frame++ {
		x := float32(100 + frame*3)
		ids := tr.Update([]vision.Detection{det(x, 50, 80, 1, 0, 0)})
		if len(ids) != 1 {
			t.Fatalf("frame %d: expected 1 assignment, got %d", frame, len(ids))
		}
		if frame == 0 {
			id = ids[0]
			continue
		}
		if ids[0] != id {
			t.Fatalf("frame %d: track id changed from %d to %d", frame, id, ids[0])
		}
	}

	active := tr.ActiveTracks()
	if len(active) != 1 {
		t.Fatalf("expected 1 active track, got %d", len(active))
	}
	if active[0].FirstSeen != 1 || active[0].LastSeen != 20 || active[0].Age != 19 {
		t.Errorf("unexpected frame bookkeeping: first=%d last=%d age=%d",
			active[0].FirstSeen, active[0].LastSeen, active[0].Age)
	}
}

func TestTracker_Expiry(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)
	tr.Update([]vision.Detection{det(0, 0, 50)})

	for i := 0; i < cfg.MaxDisappeared; i++ {
		tr.Update(nil)
	}
	active := tr.ActiveTracks()
	if len(active) != 1 {
		t.Fatalf("track should survive %d missed frames, active=%d", cfg.MaxDisappeared, len(active))
	}
	if active[0].Disappeared != cfg.MaxDisappeared {
		t.Errorf("disappeared = %d, want %d", active[0].Disappeared, cfg.MaxDisappeared)
	}

	tr.Update(nil)
	if n := len(tr.ActiveTracks()); n != 0 {
		t.Errorf("track should be removed after %d missed frames, active=%d", cfg.MaxDisappeared+1, n)
	}
}

func TestTracker_DisappearedResetsOnMatch(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	ids := tr.Update([]vision.Detection{det(0, 0, 50)})
	tr.Update(nil)
	tr.Update(nil)
	// Unrelated detection keeps the original track unmatched.
	tr.Update([]vision.Detection{det(500, 500, 50)})

	got, ok := tr.Track(ids[0])
	if !ok || got.Disappeared != 3 {
		t.Fatalf("expected disappeared=3, got %+v (found=%v)", got, ok)
	}

	again := tr.Update([]vision.Detection{det(2, 2, 50)})
	if again[0] != ids[0] {
		t.Fatalf("expected re-match to track %d, got %d", ids[0], again[0])
	}
	got, _ = tr.Track(ids[0])
	if got.Disappeared != 0 {
		t.Errorf("disappeared should reset to 0 after match, got %d", got.Disappeared)
	}
}

func TestTracker_UnmatchedDetectionsSpawnTracks(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	first := tr.Update([]vision.Detection{det(0, 0, 50)})
	second := tr.Update([]vision.Detection{det(1, 1, 50), det(400, 400, 50)})

	if second[0] != first[0] {
		t.Errorf("overlapping detection should keep track %d, got %d", first[0], second[0])
	}
	if second[1] <= first[0] {
		t.Errorf("new track id %d should be greater than %d", second[1], first[0])
	}
	if tr.Len() != 2 {
		t.Errorf("expected 2 tracks, got %d", tr.Len())
	}
}

func TestTracker_IDsNeverReused(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	a := tr.Update([]vision.Detection{det(0, 0, 50)})[0]
	tr.Clear()
	b := tr.Update([]vision.Detection{det(0, 0, 50)})[0]
	other := NewTracker(DefaultConfig()).Update([]vision.Detection{det(0, 0, 50)})[0]

	if b <= a || other <= b {
		t.Errorf("ids must increase across clears and trackers: %d, %d, %d", a, b, other)
	}
}

func TestTracker_EmbeddingOnlyMatchBelowThreshold(t *testing.T) {
	// Same embedding but no overlap scores exactly 0.3, which does not clear the threshold.
	tr := NewTracker(DefaultConfig())
	a := tr.Update([]vision.Detection{det(0, 0, 50, 1, 0)})[0]
	b := tr.Update([]vision.Detection{det(300, 300, 50, 1, 0)})[0]
	if a == b {
		t.Errorf("non-overlapping detection must not match on embedding alone")
	}
}

func TestTracker_Smoothing(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	id := tr.Update([]vision.Detection{det(0, 0, 100, 1, 0)})[0]
	tr.Update([]vision.Detection{det(10, 10, 100, 0, 1)})

	got, _ := tr.Track(id)
	want := [4]float32{3, 3, 103, 103}
	for i := range want {
		if math.Abs(float64(got.BBox[i]-want[i])) > 1e-4 {
			t.Fatalf("bbox = %v, want %v", got.BBox, want)
		}
	}
	if n := vision.Norm(got.Embedding); math.Abs(n-1) > 1e-6 {
		t.Errorf("embedding should be unit length, norm=%v", n)
	}
	if got.Embedding[0] <= got.Embedding[1] {
		t.Errorf("old embedding should dominate, got %v", got.Embedding)
	}
}

func TestTracker_SetIdentity(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	id := tr.Update([]vision.Detection{det(0, 0, 50)})[0]

	ident := Identity{Name: "Ada", ExternalID: "S-001", Section: "A", Confidence: 0.8, Recognized: true}
	if !tr.SetIdentity(id, ident) {
		t.Fatal("SetIdentity returned false for active track")
	}
	tr.SetIdentity(id, ident)

	got, _ := tr.Track(id)
	if got.Identity != ident || got.RecognitionCount != 2 {
		t.Errorf("unexpected track state %+v", got)
	}
	if tr.SetIdentity(id+1000, ident) {
		t.Error("SetIdentity should fail for unknown track")
	}
}

func TestFindByIoU(t *testing.T) {
	tracks := []Track{
		{ID: 1, BBox: [4]float32{0, 0, 10, 10}},
		{ID: 2, BBox: [4]float32{2, 0, 12, 10}},
	}
	got, ok := FindByIoU(tracks, [4]float32{2, 0, 12, 10}, 0.3)
	if !ok || got.ID != 2 {
		t.Errorf("expected track 2, got %+v ok=%v", got, ok)
	}
	if _, ok := FindByIoU(tracks, [4]float32{100, 100, 110, 110}, 0.3); ok {
		t.Error("expected no match for distant box")
	}
}

func TestAssign(t *testing.T) {
	// Greedy gives track 0 its favourite and leaves track 1 below threshold;
	// the optimal assignment swaps them.
	scores := [][]float32{
		{0.9, 0.8},
		{0.85, 0.1},
	}

	greedy := assignGreedy(scores, 0.3)
	if len(greedy) != 1 || greedy[0] != [2]int{0, 0} {
		t.Errorf("assignGreedy() = %v, want [[0 0]]", greedy)
	}

	opt := assignHungarian(scores, 0.3)
	got := map[int]int{}
	for _, p := range opt {
		got[p[0]] = p[1]
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("assignHungarian() = %v, want track0->1 track1->0", opt)
	}
}

func TestAssign_RectangularAndThreshold(t *testing.T) {
	scores := [][]float32{
		{0.2, 0.95, 0.1},
	}
	for name, fn := range map[string]func([][]float32, float32) [][2]int{
		"greedy":    assignGreedy,
		"hungarian": assignHungarian,
	} {
		pairs := fn(scores, 0.3)
		if len(pairs) != 1 || pairs[0] != [2]int{0, 1} {
			t.Errorf("%s: got %v, want [[0 1]]", name, pairs)
		}
		if none := fn([][]float32{{0.3}}, 0.3); len(none) != 0 {
			t.Errorf("%s: score equal to threshold must not match, got %v", name, none)
		}
	}
}

func TestTracker_HungarianConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmHungarian
	tr := NewTracker(cfg)

	ids := tr.Update([]vision.Detection{det(0, 0, 50), det(200, 0, 50)})
	next := tr.Update([]vision.Detection{det(202, 0, 50), det(1, 0, 50)})
	if next[0] != ids[1] || next[1] != ids[0] {
		t.Errorf("expected swapped order assignment, got %v from %v", next, ids)
	}
}

package enrollment

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/vision"
)

func newRegistry(t *testing.T) *facedb.Database {
	t.Helper()
	db := facedb.New()
	if err := db.CreateSection("Grade10-Newton"); err != nil {
		t.Fatal(err)
	}
	return db
}

func face(x1, y1, x2, y2 float32, emb ...float32) vision.Detection {
	return vision.Detection{BBox: [4]float32{x1, y1, x2, y2}, Confidence: 0.9, Embedding: vision.Normalize(emb)}
}

var frame = image.NewRGBA(image.Rect(0, 0, 200, 200))

func TestManager_StartValidation(t *testing.T) {
	db := newRegistry(t)
	_ = db.Add(facedb.Identity{
		Name: "Ada", ExternalID: "S-001", Section: "Grade10-Newton",
		Embeddings: map[facedb.Angle][][]float32{facedb.AngleFront: {{1, 0}}},
	})

	tests := []struct {
		name       string
		externalID string
		section    string
		personName string
		wantErr    error
	}{
		{"ok", "S-002", "Grade10-Newton", "Bob", nil},
		{"missing name", "S-002", "Grade10-Newton", "", ErrMissingField},
		{"too short", "ab", "Grade10-Newton", "Bob", ErrInvalidExternalID},
		{"too long", "abcdefghijklmnopqrstu", "Grade10-Newton", "Bob", ErrInvalidExternalID},
		{"bad chars", "S 002", "Grade10-Newton", "Bob", ErrInvalidExternalID},
		{"new section", "S-002", "Grade10-Einstein", "Bob", nil},
		{"invalid id in new section", "x", "Grade11-Curie", "Bob", ErrInvalidExternalID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultConfig())
			_, err := m.Start(db, "enroll-1", tt.personName, tt.externalID, tt.section, 0)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Start() error = %v", err)
				}
				if !db.HasSection(tt.section) {
					t.Errorf("section %s should exist after Start", tt.section)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}
			if m.Len() != 0 {
				t.Error("failed start must not create a session")
			}
			if tt.section != "Grade10-Newton" && db.HasSection(tt.section) {
				t.Errorf("failed start created section %s", tt.section)
			}
		})
	}
}

func TestManager_StartDuplicateID(t *testing.T) {
	db := newRegistry(t)
	_ = db.Add(facedb.Identity{
		Name: "Ada", ExternalID: "S-001", Section: "Grade10-Newton",
		Embeddings: map[facedb.Angle][][]float32{facedb.AngleFront: {{1, 0}}},
	})
	before := db.Version()

	for _, section := range []string{"Grade10-Newton", "Grade10-Einstein"} {
		_, err := NewManager(DefaultConfig()).Start(db, "enroll-1", "Bob", "S-001", section, 0)
		var dup *facedb.DuplicateIDError
		if !errors.As(err, &dup) || dup.Section != "Grade10-Newton" {
			t.Fatalf("expected duplicate id error naming the section, got %v", err)
		}
		if db.Version() != before {
			t.Errorf("start in %s must not change the database", section)
		}
	}
}

func TestManager_FullCapture(t *testing.T) {
	db := newRegistry(t)
	m := NewManager(DefaultConfig())
	m.now = func() time.Time { return time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC) }

	s, err := m.Start(db, "enroll-1", "Bob", "S-002", "Grade10-Newton", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s.Angle() != facedb.AngleFront {
		t.Fatalf("initial angle = %s", s.Angle())
	}

	for i, wantComplete := range []bool{false, true} {
		res, err := m.ProcessFrame("enroll-1", frame, []vision.Detection{face(50, 50, 150, 150, 1, 0)})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success || res.Samples != i+1 || res.AngleComplete != wantComplete {
			t.Fatalf("frame %d: %+v", i, res)
		}
		if res.Quality == nil {
			t.Errorf("frame %d: quality report missing", i)
		}
	}

	res, _ := m.ProcessFrame("enroll-1", frame, []vision.Detection{face(50, 50, 150, 150, 1, 0)})
	if !res.Success || res.Samples != 3 || res.TotalSamples != 3 || !res.AngleComplete {
		t.Errorf("extra sample on a complete angle: %+v", res)
	}

	for _, want := range []facedb.Angle{facedb.AngleLeft, facedb.AngleRight} {
		adv, err := m.Advance("enroll-1")
		if err != nil || adv.Angle != string(want) || adv.AllComplete {
			t.Fatalf("Advance() = %+v, %v", adv, err)
		}
		_, _ = m.ProcessFrame("enroll-1", frame, []vision.Detection{face(50, 50, 150, 150, 0.9, 0.1)})
	}
	adv, _ := m.Advance("enroll-1")
	if !adv.AllComplete || adv.Angle != string(facedb.AngleRight) {
		t.Errorf("advance after right = %+v", adv)
	}

	ident, err := m.Build(db, "enroll-1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ident.SampleCount() != 5 || len(ident.Metadata.AnglesCollected) != 3 {
		t.Errorf("unexpected identity %+v", ident.Metadata)
	}
	if ident.Metadata.SamplesPerAngle != 2 || !ident.Metadata.RegisteredAt.Equal(m.now()) {
		t.Errorf("unexpected metadata %+v", ident.Metadata)
	}
	if m.Len() != 1 {
		t.Error("Build must keep the session")
	}
}

func TestManager_UsesLargestFace(t *testing.T) {
	db := newRegistry(t)
	m := NewManager(DefaultConfig())
	_, _ = m.Start(db, "enroll-1", "Bob", "S-002", "Grade10-Newton", 1)

	res, _ := m.ProcessFrame("enroll-1", frame, []vision.Detection{
		face(0, 0, 20, 20, 0, 1),
		face(40, 40, 160, 160, 1, 0),
	})
	if !res.Success || res.BBox == nil || res.BBox[2] != 160 {
		t.Fatalf("largest face not selected: %+v", res)
	}
	ident, _ := m.Build(db, "enroll-1")
	if got := ident.Embeddings[facedb.AngleFront][0]; got[0] != 1 {
		t.Errorf("stored embedding = %v", got)
	}
}

func TestManager_DegradedFrames(t *testing.T) {
	db := newRegistry(t)

	tests := []struct {
		name string
		cfg  Config
		dets []vision.Detection
	}{
		{"no face", DefaultConfig(), nil},
		{"multiple faces", Config{RejectMultipleFaces: true}, []vision.Detection{
			face(0, 0, 50, 50, 1, 0), face(100, 100, 150, 150, 0, 1),
		}},
		{"low quality", Config{MinQuality: 0.99}, []vision.Detection{face(50, 50, 150, 150, 1, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.cfg)
			_, _ = m.Start(db, "enroll-1", "Bob", "S-002", "Grade10-Newton", 0)
			res, err := m.ProcessFrame("enroll-1", frame, tt.dets)
			if err != nil {
				t.Fatalf("degraded frame must not error: %v", err)
			}
			if res.Success || res.Message == "" || res.TotalSamples != 0 {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
}

func TestManager_BuildWithoutSamples(t *testing.T) {
	db := newRegistry(t)
	m := NewManager(DefaultConfig())
	_, _ = m.Start(db, "enroll-1", "Bob", "S-002", "Grade10-Newton", 0)

	if _, err := m.Build(db, "enroll-1"); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
	if _, err := m.Status("enroll-1"); err != nil {
		t.Errorf("session should be kept, got %v", err)
	}
}

func TestManager_UnknownSession(t *testing.T) {
	m := NewManager(DefaultConfig())
	if _, err := m.ProcessFrame("missing", frame, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ProcessFrame: %v", err)
	}
	if _, err := m.Advance("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Advance: %v", err)
	}
	if err := m.Cancel("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Cancel: %v", err)
	}
}

func TestManager_RestartReplacesSession(t *testing.T) {
	db := newRegistry(t)
	m := NewManager(DefaultConfig())
	_, _ = m.Start(db, "enroll-1", "Bob", "S-002", "Grade10-Newton", 0)
	_, _ = m.ProcessFrame("enroll-1", frame, []vision.Detection{face(50, 50, 150, 150, 1, 0)})

	_, _ = m.Start(db, "enroll-1", "Cy", "S-003", "Grade10-Newton", 0)
	st, err := m.Status("enroll-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Name != "Cy" || st.TotalSamples != 0 || m.Len() != 1 {
		t.Errorf("expected a fresh session, got %+v", st)
	}

	if err := m.Cancel("enroll-1"); err != nil || m.Len() != 0 {
		t.Errorf("Cancel() = %v, len %d", err, m.Len())
	}
}

package facedb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func seededDB(t *testing.T) *Database {
	t.Helper()
	db := New()
	_ = db.CreateSection("B")
	_ = db.CreateSection("A")
	if err := db.Add(identity("Ada", "S-001", "A", unit(1, 0), unit(0.9, 0.1))); err != nil {
		t.Fatal(err)
	}
	if err := db.Add(identity("Bob", "S-002", "B", unit(0, 1))); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "faces", "db.msgpack"))

	if _, err := store.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot before first save, got %v", err)
	}

	src := seededDB(t)
	if err := store.Save(ctx, src.Snapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := FromSnapshot(snap)

	sections := got.Sections()
	if len(sections) != 2 || sections[0].Name != "B" || sections[1].Name != "A" {
		t.Errorf("section order not preserved: %+v", sections)
	}
	ada, ok := got.Get("S-001")
	if !ok || ada.Section != "A" || ada.SampleCount() != 2 || len(ada.Centroid) != 2 {
		t.Errorf("unexpected identity after reload: %+v", ada)
	}
	if !ada.Metadata.RegisteredAt.Equal(identity("", "", "").Metadata.RegisteredAt) {
		t.Errorf("registration date lost: %v", ada.Metadata.RegisteredAt)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.msgpack")
	if err := os.WriteFile(path, []byte("not msgpack at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("expected decode error for corrupt file")
	}
}

func TestFromSnapshot_RebuildsIDMap(t *testing.T) {
	snap := seededDB(t).Snapshot()
	snap.IDMap = nil

	db := FromSnapshot(snap)
	for id, section := range map[string]string{"S-001": "A", "S-002": "B"} {
		e, ok := db.Lookup(id)
		if !ok || e.Section != section || e.PersonID != PersonIDFor(id) {
			t.Errorf("Lookup(%s) = %+v, %v", id, e, ok)
		}
	}
}

func TestFromSnapshot_ReconcilesSectionList(t *testing.T) {
	snap := seededDB(t).Snapshot()
	snap.Sections["C"] = map[string]IdentityRecord{}
	snap.SectionList = []string{"A", "ghost", "A"}

	db := FromSnapshot(snap)
	got := db.Sections()
	if len(got) != 3 || got[0].Name != "A" || got[1].Name != "B" || got[2].Name != "C" {
		t.Errorf("unexpected sections %+v", got)
	}
}

func TestFromSnapshot_RecomputesMissingCentroid(t *testing.T) {
	snap := seededDB(t).Snapshot()
	rec := snap.Sections["B"]["person_S-002"]
	rec.Centroid = nil
	snap.Sections["B"]["person_S-002"] = rec

	bob, _ := FromSnapshot(snap).Get("S-002")
	if len(bob.Centroid) != 2 || bob.Centroid[1] < 0.999 {
		t.Errorf("centroid not recomputed: %v", bob.Centroid)
	}
}

func TestFromSnapshot_Nil(t *testing.T) {
	db := FromSnapshot(nil)
	if db.Len() != 0 || len(db.Sections()) != 0 {
		t.Error("nil snapshot should give an empty database")
	}
}

func TestSnapshot_FlatEmbeddings(t *testing.T) {
	db := New()
	_ = db.CreateSection("A")
	ident := identity("Ada", "S-001", "A", unit(1, 0))
	ident.Embeddings[AngleLeft] = [][]float32{unit(0, 1), unit(0.5, 0.5)}
	if err := db.Add(ident); err != nil {
		t.Fatal(err)
	}

	rec := db.Snapshot().Sections["A"]["person_S-001"]
	if len(rec.Embeddings) != 3 {
		t.Fatalf("persisted %d embeddings, want a flat list of 3", len(rec.Embeddings))
	}
	if rec.Embeddings[0][0] != 1 {
		t.Errorf("front sample should come first, got %v", rec.Embeddings[0])
	}
	if rec.Metadata.AngleSamples["front"] != 1 || rec.Metadata.AngleSamples["left"] != 2 {
		t.Errorf("angle counts = %v", rec.Metadata.AngleSamples)
	}

	got, _ := FromSnapshot(db.Snapshot()).Get("S-001")
	if len(got.Embeddings[AngleFront]) != 1 || len(got.Embeddings[AngleLeft]) != 2 {
		t.Errorf("angles not restored: front=%d left=%d", len(got.Embeddings[AngleFront]), len(got.Embeddings[AngleLeft]))
	}
}

func TestSnapshot_FlatEmbeddingsWithoutCounts(t *testing.T) {
	snap := seededDB(t).Snapshot()
	rec := snap.Sections["A"]["person_S-001"]
	rec.Metadata.AngleSamples = nil
	snap.Sections["A"]["person_S-001"] = rec

	ada, _ := FromSnapshot(snap).Get("S-001")
	if ada.SampleCount() != 2 || len(ada.Embeddings[AngleFront]) != 2 {
		t.Errorf("samples without counts should load as front: %+v", ada.Embeddings)
	}
}

package facedb

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/your-org/classcam/internal/vision"
)

func unit(v ...float32) []float32 {
	return vision.Normalize(v)
}

func identity(name, extID, section string, samples ...[]float32) Identity {
	return Identity{
		Name:       name,
		ExternalID: extID,
		Section:    section,
		Embeddings: map[Angle][][]float32{AngleFront: samples},
		Metadata:   Metadata{RegisteredAt: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC), TotalSamples: len(samples)},
	}
}

func TestDatabase_CreateSection(t *testing.T) {
	db := New()
	if err := db.CreateSection("Grade10-Newton"); err != nil {
		t.Fatalf("CreateSection() error = %v", err)
	}
	if err := db.Add(identity("Ada", "S-001", "Grade10-Newton", unit(1, 0))); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	err := db.CreateSection("Grade10-Newton")
	if !errors.Is(err, ErrSectionExists) {
		t.Fatalf("expected ErrSectionExists, got %v", err)
	}
	members, _ := db.Members("Grade10-Newton")
	if len(members) != 1 {
		t.Errorf("duplicate create must not overwrite section, members=%d", len(members))
	}

	if err := db.CreateSection(""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestDatabase_SectionsKeepCreationOrder(t *testing.T) {
	db := New()
	for _, name := range []string{"C", "A", "B"} {
		if err := db.CreateSection(name); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.Add(identity("Ada", "S-001", "A", unit(1, 0), unit(0, 1)))

	got := db.Sections()
	if len(got) != 3 || got[0].Name != "C" || got[1].Name != "A" || got[2].Name != "B" {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[1].PersonCount != 1 || got[1].TotalSamples != 2 {
		t.Errorf("unexpected summary %+v", got[1])
	}
}

func TestDatabase_AddDuplicateExternalID(t *testing.T) {
	db := New()
	_ = db.CreateSection("A")
	_ = db.CreateSection("B")
	if err := db.Add(identity("Ada", "S-001", "A", unit(1, 0))); err != nil {
		t.Fatal(err)
	}
	before := db.Version()

	err := db.Add(identity("Bob", "S-001", "B", unit(0, 1)))
	var dup *DuplicateIDError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateIDError, got %v", err)
	}
	if dup.Section != "A" {
		t.Errorf("conflicting section = %q, want A", dup.Section)
	}
	if want := "ID number 'S-001' already exists in section 'A'"; err.Error() != want {
		t.Errorf("error text = %q, want %q", err.Error(), want)
	}
	if db.Version() != before || db.Len() != 1 {
		t.Error("failed add must not mutate the database")
	}
}

func TestDatabase_AddDerivesCentroidAndPersonID(t *testing.T) {
	db := New()
	_ = db.CreateSection("A")
	v := unit(0.3, 0.4, 0.5)
	_ = db.Add(identity("Ada", "S-001", "A", v, v, v))

	got, ok := db.Get("S-001")
	if !ok {
		t.Fatal("identity not found")
	}
	if got.PersonID != "person_S-001" {
		t.Errorf("PersonID = %q", got.PersonID)
	}
	for i := range v {
		if math.Abs(float64(got.Centroid[i]-v[i])) > 1e-6 {
			t.Fatalf("centroid = %v, want %v", got.Centroid, v)
		}
	}
}

func TestDatabase_AddUnknownSection(t *testing.T) {
	db := New()
	err := db.Add(identity("Ada", "S-001", "missing", unit(1, 0)))
	if !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestDatabase_DeleteSectionClearsIndex(t *testing.T) {
	db := New()
	_ = db.CreateSection("A")
	_ = db.CreateSection("B")
	_ = db.Add(identity("Ada", "S-001", "A", unit(1, 0)))
	_ = db.Add(identity("Bob", "S-002", "A", unit(0, 1)))
	_ = db.Add(identity("Cy", "S-003", "B", unit(1, 1)))

	n, err := db.DeleteSection("A")
	if err != nil || n != 2 {
		t.Fatalf("DeleteSection() = %d, %v", n, err)
	}
	for _, id := range []string{"S-001", "S-002"} {
		if _, ok := db.Lookup(id); ok {
			t.Errorf("id %s should be removed from the index", id)
		}
	}
	if _, ok := db.Lookup("S-003"); !ok {
		t.Error("other sections must keep their index entries")
	}
	if db.HasSection("A") || len(db.Sections()) != 1 {
		t.Error("section A should be gone")
	}
	if _, err := db.DeleteSection("A"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestDatabase_DeleteIdentity(t *testing.T) {
	db := New()
	_ = db.CreateSection("A")
	_ = db.Add(identity("Ada", "S-001", "A", unit(1, 0)))
	_ = db.Add(identity("Bob", "S-002", "A", unit(0, 1)))

	removed, err := db.Delete("S-001")
	if err != nil || removed.Name != "Ada" {
		t.Fatalf("Delete() = %+v, %v", removed, err)
	}
	if err := db.CheckExternalID("S-001"); err != nil {
		t.Errorf("deleted id should be available again, got %v", err)
	}
	members, _ := db.Members("A")
	if len(members) != 1 || members[0].ExternalID != "S-002" {
		t.Errorf("unexpected members %+v", members)
	}
	if _, err := db.Delete("S-001"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestDatabase_Stats(t *testing.T) {
	db := New()
	_ = db.CreateSection("A")
	_ = db.CreateSection("B")
	_ = db.Add(identity("Ada", "S-001", "A", unit(1, 0), unit(1, 0)))
	_ = db.Add(identity("Bob", "S-002", "B", unit(0, 1)))

	got := db.Stats()
	want := Stats{Sections: 2, Identities: 2, TotalSamples: 3}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

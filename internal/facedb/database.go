// Package facedb holds enrolled identities grouped into sections and matches
// query embeddings against their centroids.
//
// Database is not safe for concurrent use; the owner serializes access.
package facedb

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/classcam/internal/vision"
)

var (
	ErrSectionExists    = errors.New("section already exists")
	ErrSectionNotFound  = errors.New("section not found")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrEmptyName        = errors.New("name is required")
)

// DuplicateIDError reports an external id that is already enrolled.
type DuplicateIDError struct {
	ExternalID string
	Section    string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("ID number '%s' already exists in section '%s'", e.ExternalID, e.Section)
}

// Angle is the head pose a sample was captured at.
type Angle string

const (
	AngleFront Angle = "front"
	AngleLeft  Angle = "left"
	AngleRight Angle = "right"
)

// Angles lists capture angles in enrollment order.
var Angles = []Angle{AngleFront, AngleLeft, AngleRight}

// Metadata describes how an identity was enrolled.
type Metadata struct {
	RegisteredAt    time.Time `json:"registration_date" msgpack:"registration_date"`
	SamplesPerAngle int       `json:"samples_per_angle" msgpack:"samples_per_angle"`
	TotalSamples    int       `json:"total_samples" msgpack:"total_samples"`
	AnglesCollected []string  `json:"angles_collected" msgpack:"angles_collected"`
	// AngleSamples splits the flat persisted embedding list back into angles.
	AngleSamples map[string]int `json:"angle_samples,omitempty" msgpack:"angle_samples,omitempty"`
}

// Identity is one enrolled person.
type Identity struct {
	PersonID   string
	Name       string
	ExternalID string
	Section    string
	Embeddings map[Angle][][]float32
	Centroid   []float32
	Metadata   Metadata
}

// SampleCount returns the number of sample embeddings across all angles.
func (i *Identity) SampleCount() int {
	n := 0
	for _, s := range i.Embeddings {
		n += len(s)
	}
	return n
}

// Samples returns every sample embedding, front then left then right.
func (i *Identity) Samples() [][]float32 {
	var all [][]float32
	for _, a := range Angles {
		all = append(all, i.Embeddings[a]...)
	}
	return all
}

// PersonIDFor derives the storage key of an external id.
func PersonIDFor(externalID string) string {
	return "person_" + externalID
}

// IDEntry is the reverse index value for an external id.
type IDEntry struct {
	Section  string `json:"section" msgpack:"section"`
	PersonID string `json:"person_id" msgpack:"person_id"`
}

// SectionSummary is a listing row for a section.
type SectionSummary struct {
	Name         string `json:"name"`
	PersonCount  int    `json:"person_count"`
	TotalSamples int    `json:"total_samples"`
}

// Stats summarises the database.
type Stats struct {
	Sections     int `json:"sections"`
	Identities   int `json:"identities"`
	TotalSamples int `json:"total_samples"`
}

type section struct {
	name    string
	order   []string // person ids, enrollment order
	members map[string]*Identity
}

// Database is the in-memory face database.
type Database struct {
	sections map[string]*section
	order    []string
	idIndex  map[string]IDEntry
	version  uint64
}

// New returns an empty, initialised database.
func New() *Database {
	return &Database{
		sections: make(map[string]*section),
		idIndex:  make(map[string]IDEntry),
	}
}

// Version changes on every mutation.
func (db *Database) Version() uint64 {
	return db.version
}

// CreateSection adds an empty section. Existing sections are left untouched.
func (db *Database) CreateSection(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if _, ok := db.sections[name]; ok {
		return fmt.Errorf("create section %q: %w", name, ErrSectionExists)
	}
	db.sections[name] = &section{name: name, members: make(map[string]*Identity)}
	db.order = append(db.order, name)
	db.version++
	return nil
}

// DeleteSection removes a section, its identities and their id index entries.
// It returns the number of identities removed.
func (db *Database) DeleteSection(name string) (int, error) {
	sec, ok := db.sections[name]
	if !ok {
		return 0, fmt.Errorf("delete section %q: %w", name, ErrSectionNotFound)
	}
	for _, ident := range sec.members {
		delete(db.idIndex, ident.ExternalID)
	}
	delete(db.sections, name)
	for i, n := range db.order {
		if n == name {
			db.order = append(db.order[:i], db.order[i+1:]...)
			break
		}
	}
	db.version++
	return len(sec.members), nil
}

// HasSection reports whether name exists.
func (db *Database) HasSection(name string) bool {
	_, ok := db.sections[name]
	return ok
}

// Sections lists sections in creation order.
func (db *Database) Sections() []SectionSummary {
	out := make([]SectionSummary, 0, len(db.order))
	for _, name := range db.order {
		sec := db.sections[name]
		s := SectionSummary{Name: name, PersonCount: len(sec.members)}
		for _, ident := range sec.members {
			s.TotalSamples += ident.SampleCount()
		}
		out = append(out, s)
	}
	return out
}

// Members returns the identities of a section in enrollment order.
func (db *Database) Members(name string) ([]Identity, error) {
	sec, ok := db.sections[name]
	if !ok {
		return nil, fmt.Errorf("list members of %q: %w", name, ErrSectionNotFound)
	}
	out := make([]Identity, 0, len(sec.order))
	for _, pid := range sec.order {
		out = append(out, *sec.members[pid])
	}
	return out, nil
}

// Lookup returns the reverse index entry for an external id.
func (db *Database) Lookup(externalID string) (IDEntry, bool) {
	e, ok := db.idIndex[externalID]
	return e, ok
}

// CheckExternalID returns a *DuplicateIDError when the id is already enrolled.
func (db *Database) CheckExternalID(externalID string) error {
	if e, ok := db.idIndex[externalID]; ok {
		return &DuplicateIDError{ExternalID: externalID, Section: e.Section}
	}
	return nil
}

// Get returns a copy of the identity enrolled under externalID.
func (db *Database) Get(externalID string) (Identity, bool) {
	e, ok := db.idIndex[externalID]
	if !ok {
		return Identity{}, false
	}
	sec, ok := db.sections[e.Section]
	if !ok {
		return Identity{}, false
	}
	ident, ok := sec.members[e.PersonID]
	if !ok {
		return Identity{}, false
	}
	return *ident, true
}

// Add stores a new identity in its section. PersonID and Centroid are derived
// when empty.
func (db *Database) Add(ident Identity) error {
	if ident.Name == "" || ident.ExternalID == "" {
		return ErrEmptyName
	}
	sec, ok := db.sections[ident.Section]
	if !ok {
		return fmt.Errorf("add identity to %q: %w", ident.Section, ErrSectionNotFound)
	}
	if err := db.CheckExternalID(ident.ExternalID); err != nil {
		return err
	}
	if ident.PersonID == "" {
		ident.PersonID = PersonIDFor(ident.ExternalID)
	}
	if len(ident.Centroid) == 0 {
		ident.Centroid = vision.Centroid(ident.Samples())
	}

	stored := ident
	sec.members[stored.PersonID] = &stored
	sec.order = append(sec.order, stored.PersonID)
	db.idIndex[stored.ExternalID] = IDEntry{Section: stored.Section, PersonID: stored.PersonID}
	db.version++
	return nil
}

// Delete removes the identity enrolled under externalID.
func (db *Database) Delete(externalID string) (Identity, error) {
	e, ok := db.idIndex[externalID]
	if !ok {
		return Identity{}, fmt.Errorf("delete %q: %w", externalID, ErrIdentityNotFound)
	}

	sec, ok := db.sections[e.Section]
	if !ok {
		return Identity{}, fmt.Errorf("delete %q: %w", externalID, ErrIdentityNotFound)
	}
	ident, ok := sec.members[e.PersonID]
	if !ok {
		return Identity{}, fmt.Errorf("delete %q: %w", externalID, ErrIdentityNotFound)
	}
	delete(db.idIndex, externalID)
	delete(sec.members, e.PersonID)
	for i, pid := range sec.order {
		if pid == e.PersonID {
			sec.order = append(sec.order[:i], sec.order[i+1:]...)
			break
		}
	}
	db.version++
	return *ident, nil
}

// Each visits identities in scan order (section order, then enrollment order)
// until fn returns false. A non-empty sectionName restricts the walk to that section.
func (db *Database) Each(sectionName string, fn func(*Identity) bool) {
	for _, name := range db.order {
		if sectionName != "" && name != sectionName {
			continue
		}
		sec := db.sections[name]
		for _, pid := range sec.order {
			if !fn(sec.members[pid]) {
				return
			}
		}
	}
}

// Len returns the number of identities.
func (db *Database) Len() int {
	n := 0
	for _, sec := range db.sections {
		n += len(sec.members)
	}
	return n
}

// Stats summarises section, identity and sample counts.
func (db *Database) Stats() Stats {
	s := Stats{Sections: len(db.sections)}
	for _, sec := range db.sections {
		s.Identities += len(sec.members)
		for _, ident := range sec.members {
			s.TotalSamples += ident.SampleCount()
		}
	}
	return s
}

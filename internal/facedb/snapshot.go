package facedb

import (
	"log/slog"
	"sort"

	"github.com/your-org/classcam/internal/vision"
)

// Snapshot is the persisted form of a Database.
type Snapshot struct {
	Sections    map[string]map[string]IdentityRecord `json:"sections" msgpack:"sections"`
	SectionList []string                             `json:"section_list" msgpack:"section_list"`
	IDMap       map[string]IDEntry                   `json:"id_map" msgpack:"id_map"`
}

// IdentityRecord is one person inside a snapshot section, keyed by person id.
type IdentityRecord struct {
	Name       string      `json:"name" msgpack:"name"`
	ExternalID string      `json:"external_id" msgpack:"external_id"`
	Embeddings [][]float32 `json:"embeddings" msgpack:"embeddings"` // front, then left, then right
	Centroid   []float32   `json:"centroid_embedding" msgpack:"centroid_embedding"`
	Metadata   Metadata    `json:"metadata" msgpack:"metadata"`
}

// Snapshot serializes the whole database.
func (db *Database) Snapshot() *Snapshot {
	s := &Snapshot{
		Sections:    make(map[string]map[string]IdentityRecord, len(db.sections)),
		SectionList: append([]string{}, db.order...),
		IDMap:       make(map[string]IDEntry, len(db.idIndex)),
	}
	for name, sec := range db.sections {
		recs := make(map[string]IdentityRecord, len(sec.members))
		for pid, ident := range sec.members {
			meta := ident.Metadata
			meta.AngleSamples = make(map[string]int, len(ident.Embeddings))
			for _, a := range Angles {
				if n := len(ident.Embeddings[a]); n > 0 {
					meta.AngleSamples[string(a)] = n
				}
			}
			recs[pid] = IdentityRecord{
				Name:       ident.Name,
				ExternalID: ident.ExternalID,
				Embeddings: ident.Samples(),
				Centroid:   ident.Centroid,
				Metadata:   meta,
			}
		}
		s.Sections[name] = recs
	}
	for id, e := range db.idIndex {
		s.IDMap[id] = e
	}
	return s
}

// FromSnapshot rebuilds a Database. The section list is reconciled with the
// section map, missing centroids are recomputed and the id index is rebuilt
// from the sections when it is absent.
func FromSnapshot(s *Snapshot) *Database {
	db := New()
	if s == nil {
		return db
	}

	seen := make(map[string]bool, len(s.Sections))
	for _, name := range s.SectionList {
		if _, ok := s.Sections[name]; ok && !seen[name] {
			db.order = append(db.order, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range s.Sections {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	db.order = append(db.order, extra...)

	for _, name := range db.order {
		sec := &section{name: name, members: make(map[string]*Identity)}
		for pid, rec := range s.Sections[name] {
			ident := &Identity{
				PersonID:   pid,
				Name:       rec.Name,
				ExternalID: rec.ExternalID,
				Section:    name,
				Embeddings: splitByAngle(rec.Embeddings, rec.Metadata.AngleSamples),
				Centroid:   rec.Centroid,
				Metadata:   rec.Metadata,
			}
			if len(ident.Centroid) == 0 {
				ident.Centroid = vision.Centroid(ident.Samples())
			}
			sec.members[pid] = ident
			sec.order = append(sec.order, pid)
		}
		sort.Slice(sec.order, func(i, j int) bool {
			a, b := sec.members[sec.order[i]], sec.members[sec.order[j]]
			if !a.Metadata.RegisteredAt.Equal(b.Metadata.RegisteredAt) {
				return a.Metadata.RegisteredAt.Before(b.Metadata.RegisteredAt)
			}
			return a.PersonID < b.PersonID
		})
		db.sections[name] = sec
	}

	if len(s.IDMap) > 0 {
		for id, e := range s.IDMap {
			if sec, ok := db.sections[e.Section]; ok && sec.members[e.PersonID] != nil {
				db.idIndex[id] = e
			}
		}
	}
	db.Each("", func(ident *Identity) bool {
		if _, ok := db.idIndex[ident.ExternalID]; !ok {
			if len(s.IDMap) > 0 {
				slog.Warn("id map missing entry, rebuilding", "external_id", ident.ExternalID, "section", ident.Section)
			}
			db.idIndex[ident.ExternalID] = IDEntry{Section: ident.Section, PersonID: ident.PersonID}
		}
		return true
	})
	return db
}

// splitByAngle regroups a flat sample list using the per-angle counts. When
// the counts are missing or do not add up, every sample is filed as front.
func splitByAngle(samples [][]float32, counts map[string]int) map[Angle][][]float32 {
	out := make(map[Angle][][]float32, len(Angles))
	if len(samples) == 0 {
		return out
	}
	total := 0
	for _, a := range Angles {
		total += counts[string(a)]
	}
	if total != len(samples) {
		out[AngleFront] = samples
		return out
	}
	pos := 0
	for _, a := range Angles {
		if n := counts[string(a)]; n > 0 {
			out[a] = samples[pos : pos+n]
			pos += n
		}
	}
	return out
}

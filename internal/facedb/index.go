package facedb

import (
	"github.com/coder/hnsw"

	"github.com/your-org/classcam/internal/vision"
)

const indexMaxNeighbors = 16

// centroidIndex is an HNSW graph over centroids keyed by scan position.
// It is unusable when centroids disagree on dimension.
type centroidIndex struct {
	graph   *hnsw.Graph[int]
	entries []*Identity
	version uint64
	dim     int
	mixed   bool
}

func buildCentroidIndex(db *Database) *centroidIndex {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	idx := &centroidIndex{graph: g, version: db.Version()}
	db.Each("", func(ident *Identity) bool {
		pos := len(idx.entries)
		idx.entries = append(idx.entries, ident)
		if vision.Norm(ident.Centroid) == 0 || idx.mixed {
			return true
		}
		if idx.dim == 0 {
			idx.dim = len(ident.Centroid)
		}
		if len(ident.Centroid) != idx.dim {
			idx.mixed = true
			return true
		}
		g.Add(hnsw.MakeNode(pos, ident.Centroid))
		return true
	})
	return idx
}

// accepts reports whether query can be searched without a dimension mismatch.
func (c *centroidIndex) accepts(query []float32) bool {
	return !c.mixed && c.dim > 0 && len(query) == c.dim
}

// search returns the scan positions of the k nearest centroids.
func (c *centroidIndex) search(query []float32, k int) []int {
	if c.graph.Len() == 0 {
		return nil
	}
	nodes := c.graph.Search(query, k)
	out := make([]int, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Key)
	}
	return out
}

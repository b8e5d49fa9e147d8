package tracking

import (
	"sync/atomic"

	"github.com/your-org/classcam/internal/vision"
)

// Identity is the recognition result cached on a track.
type Identity struct {
	Name       string  `json:"name"`
	ExternalID string  `json:"external_id"`
	Section    string  `json:"section"`
	Confidence float32 `json:"confidence"`
	Recognized bool    `json:"recognized"`
}

// Track represents one face followed across frames.
type Track struct {
	ID               int
	BBox             [4]float32 // smoothed
	Embedding        []float32  // smoothed, unit length
	FirstSeen        int        // frame index
	LastSeen         int        // frame index
	Age              int        // LastSeen - FirstSeen
	Disappeared      int        // consecutive unmatched frames
	Identity         Identity
	RecognitionCount int
}

func (t *Track) clone() Track {
	c := *t
	c.Embedding = append([]float32(nil), t.Embedding...)
	return c
}

// Track ids are unique for the life of the process, across all trackers.
var trackSeq atomic.Int64

func nextTrackID() int {
	return int(trackSeq.Add(1))
}

// FindByIoU returns the track with the highest IoU against box, provided it is
// strictly above threshold. Earlier tracks win ties.
func FindByIoU(tracks []Track, box [4]float32, threshold float32) (Track, bool) {
	best := -1
	bestIoU := threshold
	for i := range tracks {
		if v := vision.IoU(box, tracks[i].BBox); v > bestIoU {
			best, bestIoU = i, v
		}
	}
	if best < 0 {
		return Track{}, false
	}
	return tracks[best], true
}

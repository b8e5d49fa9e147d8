package enrollment

import (
	"time"

	"github.com/your-org/classcam/internal/facedb"
)

// Session is one in-progress enrollment.
type Session struct {
	ID              string
	Name            string
	ExternalID      string
	Section         string
	SamplesPerAngle int
	StartedAt       time.Time

	angle   int
	samples map[facedb.Angle][][]float32
}

func newSession(id, name, externalID, section string, samplesPerAngle int, now time.Time) *Session {
	return &Session{
		ID:              id,
		Name:            name,
		ExternalID:      externalID,
		Section:         section,
		SamplesPerAngle: samplesPerAngle,
		StartedAt:       now,
		samples:         make(map[facedb.Angle][][]float32, len(facedb.Angles)),
	}
}

// Angle is the angle currently being captured.
func (s *Session) Angle() facedb.Angle {
	return facedb.Angles[s.angle]
}

func (s *Session) angleSamples() int {
	return len(s.samples[s.Angle()])
}

func (s *Session) angleComplete() bool {
	return s.angleSamples() >= s.SamplesPerAngle
}

// TotalSamples counts samples across all angles.
func (s *Session) TotalSamples() int {
	n := 0
	for _, v := range s.samples {
		n += len(v)
	}
	return n
}

func (s *Session) add(embedding []float32) {
	a := s.Angle()
	s.samples[a] = append(s.samples[a], append([]float32(nil), embedding...))
}

// advance moves to the next angle and reports false when already on the last.
func (s *Session) advance() bool {
	if s.angle >= len(facedb.Angles)-1 {
		return false
	}
	s.angle++
	return true
}

func (s *Session) identity(now time.Time) facedb.Identity {
	emb := make(map[facedb.Angle][][]float32, len(s.samples))
	var collected []string
	for _, a := range facedb.Angles {
		if v := s.samples[a]; len(v) > 0 {
			emb[a] = v
			collected = append(collected, string(a))
		}
	}
	return facedb.Identity{
		Name:       s.Name,
		ExternalID: s.ExternalID,
		Section:    s.Section,
		Embeddings: emb,
		Metadata: facedb.Metadata{
			RegisteredAt:    now,
			SamplesPerAngle: s.SamplesPerAngle,
			TotalSamples:    s.TotalSamples(),
			AnglesCollected: collected,
		},
	}
}

// Status is a read-only view of a session.
type Status struct {
	SessionID       string         `json:"session_id"`
	Name            string         `json:"name"`
	ExternalID      string         `json:"external_id"`
	Section         string         `json:"section"`
	Angle           string         `json:"angle"`
	SamplesPerAngle int            `json:"samples_per_angle"`
	Samples         map[string]int `json:"samples"`
	TotalSamples    int            `json:"total_samples"`
	AngleComplete   bool           `json:"angle_complete"`
	StartedAt       time.Time      `json:"started_at"`
}

func (s *Session) status() Status {
	counts := make(map[string]int, len(facedb.Angles))
	for _, a := range facedb.Angles {
		counts[string(a)] = len(s.samples[a])
	}
	return Status{
		SessionID:       s.ID,
		Name:            s.Name,
		ExternalID:      s.ExternalID,
		Section:         s.Section,
		Angle:           string(s.Angle()),
		SamplesPerAngle: s.SamplesPerAngle,
		Samples:         counts,
		TotalSamples:    s.TotalSamples(),
		AngleComplete:   s.angleComplete(),
		StartedAt:       s.StartedAt,
	}
}

// Package enrollment drives the multi-angle capture of a new identity.
// A Manager is not safe for concurrent use.
package enrollment

import (
	"errors"
	"fmt"
	"image"
	"regexp"
	"time"

	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/vision"
)

var (
	ErrSessionNotFound   = errors.New("enrollment session not found")
	ErrMissingField      = errors.New("name, external id and section are required")
	ErrInvalidExternalID = errors.New("external id must be 3-20 letters, digits, '-' or '_'")
	ErrNoSamples         = errors.New("no samples collected")
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-_]{3,20}$`)

// ValidateExternalID checks the external id format.
func ValidateExternalID(id string) error {
	if !externalIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidExternalID, id)
	}
	return nil
}

// Registry is the part of the face database enrollment checks against.
type Registry interface {
	HasSection(name string) bool
	CreateSection(name string) error
	CheckExternalID(externalID string) error
}

// Config controls sample collection and frame gating.
type Config struct {
	SamplesPerAngle     int
	MinQuality          float64 // 0 disables the gate
	RejectMultipleFaces bool
	Weights             vision.QualityWeights
}

// DefaultConfig returns the standard enrollment settings.
func DefaultConfig() Config {
	return Config{SamplesPerAngle: 5, Weights: vision.DefaultQualityWeights()}
}

// FrameResult reports the outcome of one enrollment frame. Success is false
// for routine rejections such as no face in view.
type FrameResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	Angle         string          `json:"angle"`
	Samples       int             `json:"samples"`
	TotalSamples  int             `json:"total_samples"`
	AngleComplete bool            `json:"angle_complete"`
	FacesDetected int             `json:"faces_detected"`
	BBox          *[4]float32     `json:"bbox,omitempty"`
	Quality       *vision.Quality `json:"quality,omitempty"`
}

// AdvanceResult reports the outcome of an angle advance.
type AdvanceResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Angle       string `json:"angle"`
	AllComplete bool   `json:"all_complete"`
}

// Manager holds the enrollment sessions.
type Manager struct {
	cfg      Config
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates a manager. Zero SamplesPerAngle falls back to 5.
func NewManager(cfg Config) *Manager {
	if cfg.SamplesPerAngle <= 0 {
		cfg.SamplesPerAngle = DefaultConfig().SamplesPerAngle
	}
	if cfg.Weights == (vision.QualityWeights{}) {
		cfg.Weights = vision.DefaultQualityWeights()
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session), now: time.Now}
}

// Start validates the request and begins capture at the front angle. A
// missing section is created once the request is valid. An existing session
// with the same id is replaced.
func (m *Manager) Start(reg Registry, sessionID, name, externalID, section string, samplesPerAngle int) (*Session, error) {
	if sessionID == "" || name == "" || externalID == "" || section == "" {
		return nil, ErrMissingField
	}
	if err := ValidateExternalID(externalID); err != nil {
		return nil, err
	}
	if err := reg.CheckExternalID(externalID); err != nil {
		return nil, err
	}
	if !reg.HasSection(section) {
		if err := reg.CreateSection(section); err != nil {
			return nil, fmt.Errorf("start enrollment in %q: %w", section, err)
		}
	}
	if samplesPerAngle <= 0 {
		samplesPerAngle = m.cfg.SamplesPerAngle
	}

	s := newSession(sessionID, name, externalID, section, samplesPerAngle, m.now())
	m.sessions[sessionID] = s
	return s, nil
}

// ProcessFrame adds the embedding of the largest detected face to the
// current angle. Samples keep accumulating past SamplesPerAngle; the count
// only drives AngleComplete.
func (m *Manager) ProcessFrame(sessionID string, frame image.Image, dets []vision.Detection) (FrameResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return FrameResult{}, err
	}

	res := FrameResult{
		Angle:         string(s.Angle()),
		Samples:       s.angleSamples(),
		TotalSamples:  s.TotalSamples(),
		AngleComplete: s.angleComplete(),
		FacesDetected: len(dets),
	}

	idx := vision.Largest(dets)
	if idx < 0 {
		res.Message = "No face detected"
		return res, nil
	}
	if m.cfg.RejectMultipleFaces && len(dets) > 1 {
		res.Message = fmt.Sprintf("Multiple faces detected (%d), only one person should be in view", len(dets))
		return res, nil
	}

	face := dets[idx]
	bbox := face.BBox
	res.BBox = &bbox
	q := vision.AssessQuality(frame, face.BBox, m.cfg.Weights)
	res.Quality = &q

	if m.cfg.MinQuality > 0 && q.Score < m.cfg.MinQuality {
		res.Message = fmt.Sprintf("Face quality too low (%s, %.2f)", q.Label, q.Score)
		return res, nil
	}
	if len(face.Embedding) == 0 {
		res.Message = "No embedding for detected face"
		return res, nil
	}

	res.Success = true
	s.add(face.Embedding)
	res.Samples = s.angleSamples()
	res.TotalSamples = s.TotalSamples()
	res.AngleComplete = s.angleComplete()
	res.Message = fmt.Sprintf("Captured sample %d/%d for %s", res.Samples, s.SamplesPerAngle, s.Angle())
	return res, nil
}

// Advance moves front to left to right. On the last angle it reports
// completion and stays.
func (m *Manager) Advance(sessionID string) (AdvanceResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if !s.advance() {
		return AdvanceResult{
			Success:     true,
			Message:     "All angles complete",
			Angle:       string(s.Angle()),
			AllComplete: true,
		}, nil
	}
	return AdvanceResult{
		Success: true,
		Message: fmt.Sprintf("Now capturing %s", s.Angle()),
		Angle:   string(s.Angle()),
	}, nil
}

// Build checks the session is ready to finish and returns the identity to
// store. The session is kept; call Remove once the identity is stored.
func (m *Manager) Build(reg Registry, sessionID string) (facedb.Identity, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return facedb.Identity{}, err
	}
	if s.TotalSamples() == 0 {
		return facedb.Identity{}, ErrNoSamples
	}
	if !reg.HasSection(s.Section) {
		return facedb.Identity{}, fmt.Errorf("finish enrollment in %q: %w", s.Section, facedb.ErrSectionNotFound)
	}
	if err := reg.CheckExternalID(s.ExternalID); err != nil {
		return facedb.Identity{}, err
	}
	return s.identity(m.now()), nil
}

// Remove drops a session without error if it does not exist.
func (m *Manager) Remove(sessionID string) {
	delete(m.sessions, sessionID)
}

// Cancel discards a session and everything captured in it.
func (m *Manager) Cancel(sessionID string) error {
	if _, err := m.get(sessionID); err != nil {
		return err
	}
	delete(m.sessions, sessionID)
	return nil
}

// Status returns a snapshot of the session state.
func (m *Manager) Status(sessionID string) (Status, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return Status{}, err
	}
	return s.status(), nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return len(m.sessions)
}

func (m *Manager) get(sessionID string) (*Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

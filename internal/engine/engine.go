// Package engine is the single shared face recognition service: the face
// database, the matcher, per-session tracking and enrollment, all guarded by
// one mutex held for the full duration of every entry point.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/classcam/internal/enrollment"
	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/models"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/internal/tracking"
	"github.com/your-org/classcam/internal/vision"
)

var errSessionNotFound = errors.New("recognition session not found")

// Notifier receives recognition events once the engine lock is released.
type Notifier interface {
	NotifyRecognition(ctx context.Context, events []models.RecognitionEvent) error
}

// Options wires an Engine. Detector and Store are required; a nil Hands
// disables raised-hand detection.
type Options struct {
	Detector       vision.Detector
	Hands          vision.HandDetector
	Store          facedb.Store
	Notifier       Notifier
	Matcher        facedb.MatcherConfig
	Tracking       tracking.Config
	Enrollment     enrollment.Config
	Participation  ParticipationConfig
	ProvisionalIoU float32
}

// Engine serializes all recognition and enrollment work.
type Engine struct {
	mu sync.Mutex

	detector vision.Detector
	hands    vision.HandDetector
	store    facedb.Store
	notifier Notifier

	db       *facedb.Database
	matcher  *facedb.Matcher
	sessions map[string]*session
	enroll   *enrollment.Manager

	matcherCfg     facedb.MatcherConfig
	trackingCfg    tracking.Config
	provisionalIoU float32
	participation  ParticipationConfig

	// match is the identity lookup used by recognition.
	match func(embedding []float32, section string) facedb.Match
	now   func() time.Time
}

// New creates an engine over an empty database. Call Load to restore the
// persisted snapshot.
func New(opts Options) *Engine {
	if opts.ProvisionalIoU <= 0 {
		opts.ProvisionalIoU = 0.3
	}
	def := DefaultParticipationConfig()
	if opts.Participation.Cooldown <= 0 {
		opts.Participation.Cooldown = def.Cooldown
	}
	if opts.Participation.MinPalmSpread <= 0 {
		opts.Participation.MinPalmSpread = def.MinPalmSpread
	}
	e := &Engine{
		detector:       opts.Detector,
		hands:          opts.Hands,
		store:          opts.Store,
		notifier:       opts.Notifier,
		sessions:       make(map[string]*session),
		enroll:         enrollment.NewManager(opts.Enrollment),
		matcherCfg:     opts.Matcher,
		trackingCfg:    opts.Tracking,
		provisionalIoU: opts.ProvisionalIoU,
		participation:  opts.Participation,
		now:            time.Now,
	}
	e.match = e.matchTimed
	e.resetDatabase(facedb.New())
	return e
}

func (e *Engine) resetDatabase(db *facedb.Database) {
	e.db = db
	e.matcher = facedb.NewMatcher(db, e.matcherCfg)
}

func (e *Engine) matchTimed(embedding []float32, section string) facedb.Match {
	start := time.Now()
	m := e.matcher.Match(embedding, section)
	observability.MatchDuration.Observe(time.Since(start).Seconds())
	return m
}

// Load replaces the database with the stored snapshot. Any failure leaves an
// empty, usable database and is returned as a persistence error.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		e.resetDatabase(facedb.New())
		if errors.Is(err, facedb.ErrNoSnapshot) {
			slog.Info("no face database snapshot, starting empty")
			return nil
		}
		slog.Warn("load face database, starting empty", "error", err)
		return persistence("load face database", err)
	}

	e.resetDatabase(facedb.FromSnapshot(snap))
	st := e.db.Stats()
	slog.Info("face database loaded", "sections", st.Sections, "identities", st.Identities, "samples", st.TotalSamples)
	return nil
}

// Save writes the whole database to the store.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked(ctx)
}

func (e *Engine) saveLocked(ctx context.Context) error {
	if err := e.store.Save(ctx, e.db.Snapshot()); err != nil {
		observability.SnapshotSaves.WithLabelValues("error").Inc()
		slog.Error("save face database", "error", err)
		return persistence("save face database", err)
	}
	observability.SnapshotSaves.WithLabelValues("ok").Inc()
	return nil
}

// CreateSection adds an empty section and persists the database.
func (e *Engine) CreateSection(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.db.CreateSection(name); err != nil {
		return classify(err)
	}
	slog.Info("section created", "section", name)
	return e.saveLocked(ctx)
}

// DeleteSection removes a section with all its identities and persists the
// database. It returns the number of identities removed.
func (e *Engine) DeleteSection(ctx context.Context, name string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.db.DeleteSection(name)
	if err != nil {
		return 0, classify(err)
	}
	slog.Info("section deleted", "section", name, "identities", n)
	return n, e.saveLocked(ctx)
}

// ListSections returns every section in creation order.
func (e *Engine) ListSections() []facedb.SectionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.Sections()
}

// Member is a listing row for an enrolled identity.
type Member struct {
	PersonID        string    `json:"person_id"`
	Name            string    `json:"name"`
	ExternalID      string    `json:"external_id"`
	Samples         int       `json:"samples"`
	AnglesCollected []string  `json:"angles_collected"`
	RegisteredAt    time.Time `json:"registration_date"`
}

// ListSectionMembers returns the identities of a section in enrollment order.
func (e *Engine) ListSectionMembers(name string) ([]Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idents, err := e.db.Members(name)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Member, 0, len(idents))
	for i := range idents {
		out = append(out, memberOf(&idents[i]))
	}
	return out, nil
}

func memberOf(ident *facedb.Identity) Member {
	return Member{
		PersonID:        ident.PersonID,
		Name:            ident.Name,
		ExternalID:      ident.ExternalID,
		Samples:         ident.SampleCount(),
		AnglesCollected: ident.Metadata.AnglesCollected,
		RegisteredAt:    ident.Metadata.RegisteredAt,
	}
}

// Availability answers whether an external id can be enrolled.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckIDAvailable validates the id format and uniqueness.
func (e *Engine) CheckIDAvailable(externalID string) Availability {
	if err := enrollment.ValidateExternalID(externalID); err != nil {
		return Availability{Reason: err.Error()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.db.CheckExternalID(externalID); err != nil {
		return Availability{Reason: err.Error()}
	}
	return Availability{Available: true}
}

// DeleteIdentity removes an enrolled identity and persists the database.
func (e *Engine) DeleteIdentity(ctx context.Context, externalID string) (Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ident, err := e.db.Delete(externalID)
	if err != nil {
		return Member{}, classify(err)
	}
	slog.Info("identity deleted", "external_id", externalID, "section", ident.Section)
	return memberOf(&ident), e.saveLocked(ctx)
}

// Search detects the largest face in frame and returns the k closest
// identities regardless of threshold.
func (e *Engine) Search(ctx context.Context, frame image.Image, section string, k int) ([]facedb.Match, error) {
	if frame == nil {
		return nil, validationf("empty frame")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dets, err := e.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	idx := vision.Largest(dets)
	if idx < 0 {
		return nil, nil
	}
	return e.matcher.TopK(dets[idx].Embedding, section, k), nil
}

// Stats summarises the database and live sessions.
type Stats struct {
	facedb.Stats
	ActiveSessions     int `json:"active_sessions"`
	ActiveTracks       int `json:"active_tracks"`
	EnrollmentSessions int `json:"enrollment_sessions"`
}

// Stats returns database and session counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Stats:              e.db.Stats(),
		ActiveSessions:     len(e.sessions),
		EnrollmentSessions: e.enroll.Len(),
	}
	for _, sess := range e.sessions {
		s.ActiveTracks += sess.tracker.Len()
	}
	return s
}

package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/classcam/internal/models"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/internal/tracking"
	"github.com/your-org/classcam/internal/vision"
)

const (
	unknownName       = "Unknown"
	unknownExternalID = "N/A"
	unknownSection    = "Unknown"
)

// session is the tracking context of one camera or client.
type session struct {
	id         string
	tracker    *tracking.Tracker
	recognized map[int]tracking.Identity // positive matches by track id
	frames     int
	lastSeen   time.Time

	modal       *ModalInfo
	modalClosed map[string]time.Time // track id -> close time, for the cooldown
}

// Face is the recognition result for one detection.
type Face struct {
	BBox             [4]float32   `json:"bbox"`
	Landmarks        [][2]float32 `json:"landmarks"`
	Name             string       `json:"name"`
	ExternalID       string       `json:"external_id"`
	Section          string       `json:"section"`
	Confidence       float32      `json:"confidence"`
	DetScore         float32      `json:"det_score"`
	Tracked          bool         `json:"tracked"`
	TrackID          string       `json:"track_id"`
	NeedsRecognition bool         `json:"needs_recognition"`
	Recognized       bool         `json:"recognized"`
	Modal            *ModalInfo   `json:"modal_info,omitempty"`
}

// OptimizationStats reports how much matching the track cache avoided.
type OptimizationStats struct {
	TotalFaces       int     `json:"total_faces"`
	RecognizedCount  int     `json:"recognized_count"`
	CachedCount      int     `json:"cached_count"`
	OptimizationRate float64 `json:"optimization_rate"`
}

// RecognizeResult is the outcome of one recognition frame.
type RecognizeResult struct {
	SessionID string            `json:"session_id"`
	Faces     []Face            `json:"faces"`
	Stats     OptimizationStats `json:"optimization_stats"`
	Hands     []vision.Hand     `json:"hand_landmarks,omitempty"`
}

type frameRefKey struct{}

// WithFrameRef tags the events of a Recognize call with the stored frame they
// came from.
func WithFrameRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, frameRefKey{}, ref)
}

func frameRefFrom(ctx context.Context) string {
	ref, _ := ctx.Value(frameRefKey{}).(string)
	return ref
}

// Recognize detects, tracks and identifies the faces in frame. An empty
// sessionID starts a new session whose id is returned in the result.
func (e *Engine) Recognize(ctx context.Context, frame image.Image, section, sessionID string) (RecognizeResult, error) {
	res, events, err := e.recognize(ctx, frame, section, sessionID)
	if err != nil {
		return res, err
	}
	if len(events) > 0 && e.notifier != nil {
		if err := e.notifier.NotifyRecognition(ctx, events); err != nil {
			slog.Warn("publish recognition events", "session", res.SessionID, "error", err)
		}
	}
	return res, nil
}

func (e *Engine) recognize(ctx context.Context, frame image.Image, section, sessionID string) (RecognizeResult, []models.RecognitionEvent, error) {
	if frame == nil {
		return RecognizeResult{SessionID: sessionID, Faces: []Face{}}, nil, validationf("empty frame")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sessionLocked(sessionID)
	res := RecognizeResult{SessionID: sess.id, Faces: []Face{}}

	sess.frames++
	sess.lastSeen = e.now()

	dets, err := e.detector.Detect(ctx, frame)
	if err != nil {
		return res, nil, fmt.Errorf("detect faces: %w", err)
	}
	observability.FramesProcessed.WithLabelValues("recognize").Inc()
	observability.FacesDetected.Add(float64(len(dets)))

	pre := sess.tracker.ActiveTracks()
	faces := make([]Face, len(dets))
	cachedIdent := make(map[int]tracking.Identity)
	provisional := make(map[int]int) // detection index -> track id seen before Update
	var (
		valid    []vision.Detection
		validIdx []int
		pending  []int
	)

	for i, d := range dets {
		faces[i] = unknownFace(d)
		if !vision.ValidBox(d.BBox) {
			faces[i].TrackID = fmt.Sprintf("pending_%d_%d", sess.frames, i)
			faces[i].NeedsRecognition = true
			pending = append(pending, i)
			continue
		}
		valid = append(valid, d)
		validIdx = append(validIdx, i)

		if tr, ok := tracking.FindByIoU(pre, d.BBox, e.provisionalIoU); ok {
			faces[i].Tracked = true
			provisional[i] = tr.ID
			if ident, hit := sess.recognized[tr.ID]; hit {
				applyIdentity(&faces[i], ident)
				cachedIdent[i] = ident
				continue
			}
		}
		faces[i].NeedsRecognition = true
		pending = append(pending, i)
	}

	trackOf := make(map[int]int, len(validIdx))
	for k, id := range sess.tracker.Update(valid) {
		i := validIdx[k]
		trackOf[i] = id
		faces[i].TrackID = strconv.Itoa(id)
	}
	// A cached identity only carries over when the associator kept the
	// detection on the provisional track; otherwise the face is matched fresh.
	for _, i := range validIdx {
		ident, ok := cachedIdent[i]
		if !ok {
			continue
		}
		if trackOf[i] == provisional[i] {
			sess.tracker.SetIdentity(trackOf[i], ident)
			continue
		}
		delete(cachedIdent, i)
		faces[i] = unknownFace(dets[i])
		faces[i].TrackID = strconv.Itoa(trackOf[i])
		faces[i].NeedsRecognition = true
		pending = append(pending, i)
	}
	sort.Ints(pending)
	sess.pruneCache()

	fresh := 0
	for _, i := range pending {
		m := e.match(dets[i].Embedding, section)
		fresh++
		if !m.Found {
			observability.Recognitions.WithLabelValues("fresh", "unknown").Inc()
			continue
		}
		observability.Recognitions.WithLabelValues("fresh", "matched").Inc()
		ident := tracking.Identity{
			Name:       m.Name,
			ExternalID: m.ExternalID,
			Section:    m.Section,
			Confidence: m.Similarity,
			Recognized: true,
		}
		applyIdentity(&faces[i], ident)
		if id, ok := trackOf[i]; ok {
			sess.tracker.SetIdentity(id, ident)
			sess.recognized[id] = ident
		}
	}
	observability.Recognitions.WithLabelValues("cached", "matched").Add(float64(len(cachedIdent)))

	res.Faces = faces
	res.Stats = optimizationStats(len(dets), fresh, len(cachedIdent))
	res.Hands = e.detectHandsLocked(ctx, sess, frame, faces)
	e.updateGauges()

	var events []models.RecognitionEvent
	ts := e.now()
	for i := range faces {
		if !faces[i].Recognized {
			continue
		}
		_, cached := cachedIdent[i]
		events = append(events, models.RecognitionEvent{
			ID:         uuid.New(),
			SessionID:  sess.id,
			TrackID:    faces[i].TrackID,
			Name:       faces[i].Name,
			ExternalID: faces[i].ExternalID,
			Section:    faces[i].Section,
			Similarity: faces[i].Confidence,
			Cached:     cached,
			BBox:       faces[i].BBox,
			HandRaised: faces[i].Modal != nil,
			FrameRef:   frameRefFrom(ctx),
			Timestamp:  ts,
		})
	}
	return res, events, nil
}

func (e *Engine) sessionLocked(id string) *session {
	if id == "" {
		id = "session_" + uuid.NewString()
	}
	if s, ok := e.sessions[id]; ok {
		return s
	}
	s := &session{
		id:          id,
		tracker:     tracking.NewTracker(e.trackingCfg),
		recognized:  make(map[int]tracking.Identity),
		modalClosed: make(map[string]time.Time),
	}
	e.sessions[id] = s
	slog.Info("recognition session created", "session", id)
	return s
}

// pruneCache drops cached identities of tracks that are no longer active.
func (s *session) pruneCache() {
	if len(s.recognized) == 0 {
		return
	}
	active := make(map[int]bool, s.tracker.Len())
	for _, t := range s.tracker.ActiveTracks() {
		active[t.ID] = true
	}
	for id := range s.recognized {
		if !active[id] {
			delete(s.recognized, id)
		}
	}
}

// ClearSession drops the tracking state of a session.
func (e *Engine) ClearSession(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[sessionID]; !ok {
		return classify(fmt.Errorf("%w: %s", errSessionNotFound, sessionID))
	}
	delete(e.sessions, sessionID)
	e.updateGauges()
	slog.Info("recognition session cleared", "session", sessionID)
	return nil
}

// PruneIdleSessions drops sessions that have not seen a frame for maxIdle and
// returns how many were removed. A non-positive maxIdle disables pruning.
func (e *Engine) PruneIdleSessions(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-maxIdle)
	n := 0
	for id, s := range e.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(e.sessions, id)
			n++
		}
	}
	if n > 0 {
		e.updateGauges()
		slog.Info("idle recognition sessions pruned", "count", n)
	}
	return n
}

func (e *Engine) updateGauges() {
	tracks := 0
	for _, s := range e.sessions {
		tracks += s.tracker.Len()
	}
	observability.ActiveSessions.Set(float64(len(e.sessions)))
	observability.ActiveTracks.Set(float64(tracks))
}

func unknownFace(d vision.Detection) Face {
	return Face{
		BBox:       d.BBox,
		Landmarks:  d.Landmarks,
		Name:       unknownName,
		ExternalID: unknownExternalID,
		Section:    unknownSection,
		DetScore:   d.Confidence,
	}
}

func applyIdentity(f *Face, ident tracking.Identity) {
	f.Name = ident.Name
	f.ExternalID = ident.ExternalID
	f.Section = ident.Section
	f.Confidence = ident.Confidence
	f.Recognized = ident.Name != unknownName
}

func optimizationStats(total, fresh, cached int) OptimizationStats {
	s := OptimizationStats{TotalFaces: total, RecognizedCount: fresh, CachedCount: cached, OptimizationRate: 100}
	if total > 0 {
		rate := float64(total-fresh) / float64(total) * 100
		s.OptimizationRate = math.Round(rate*10) / 10
	}
	return s
}

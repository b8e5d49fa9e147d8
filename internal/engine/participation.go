package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/internal/vision"
)

var errNoActiveModal = errors.New("no active modal for this track")

// ParticipationConfig controls raised-hand detection.
type ParticipationConfig struct {
	// Cooldown keeps a closed modal from reopening for the same track.
	Cooldown        time.Duration
	RequireOpenPalm bool
	MinPalmSpread   float32
}

// DefaultParticipationConfig returns the standard raised-hand settings.
func DefaultParticipationConfig() ParticipationConfig {
	return ParticipationConfig{Cooldown: 10 * time.Second, MinPalmSpread: 50}
}

// ModalInfo describes a raised hand attributed to one tracked face. At most
// one modal is open per session until it is closed.
type ModalInfo struct {
	ModalActive  bool       `json:"modal_active"`
	TrackID      string     `json:"track_id"`
	PersonName   string     `json:"person_name"`
	ExternalID   string     `json:"external_id"`
	Section      string     `json:"section"`
	Confidence   float32    `json:"confidence"`
	Timestamp    time.Time  `json:"timestamp"`
	HandSide     string     `json:"hand_side"`
	HandPosition string     `json:"hand_position"`
	Zone         [4]float32 `json:"zone_coordinates"`
	FaceBBox     [4]float32 `json:"face_bbox"`
	HandIndex    int        `json:"hand_index"`
}

type handsKey struct{}

// WithHandDetection turns raised-hand detection on or off for one Recognize
// call. It is on by default when the engine has a hand detector.
func WithHandDetection(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, handsKey{}, enabled)
}

func handDetectionFrom(ctx context.Context) bool {
	enabled, ok := ctx.Value(handsKey{}).(bool)
	return !ok || enabled
}

// detectHandsLocked runs the hand detector and opens or reattaches the
// session's modal. Hand detector failures are logged and leave faces as is.
func (e *Engine) detectHandsLocked(ctx context.Context, sess *session, frame image.Image, faces []Face) []vision.Hand {
	if e.hands == nil || !handDetectionFrom(ctx) {
		return nil
	}
	hands, err := e.hands.DetectHands(ctx, frame)
	if err != nil {
		slog.Warn("detect hands", "session", sess.id, "error", err)
		return nil
	}
	if modal := e.raisedHand(sess, frame.Bounds(), faces, hands); modal != nil {
		observability.HandRaises.Inc()
		slog.Info("raised hand", "session", sess.id, "track", modal.TrackID,
			"external_id", modal.ExternalID, "side", modal.HandSide)
	}
	return hands
}

// raisedHand attaches the session's open modal to its face, or opens a new
// one for the first face, in detection order, with a hand inside its
// personal zone. It returns the newly opened modal, if any.
func (e *Engine) raisedHand(sess *session, bounds image.Rectangle, faces []Face, hands []vision.Hand) *ModalInfo {
	now := e.now()
	for track, closed := range sess.modalClosed {
		if now.Sub(closed) >= e.participation.Cooldown {
			delete(sess.modalClosed, track)
		}
	}

	if sess.modal != nil {
		for i := range faces {
			if faces[i].TrackID == sess.modal.TrackID {
				m := *sess.modal
				faces[i].Modal = &m
				break
			}
		}
		return nil
	}
	if len(hands) == 0 {
		return nil
	}

	for i := range faces {
		f := &faces[i]
		if _, cooling := sess.modalClosed[f.TrackID]; cooling {
			continue
		}
		zone := vision.PersonalZone(f.BBox, bounds.Dx(), bounds.Dy())
		for hi, h := range hands {
			wrist, ok := h.Wrist()
			if !ok || !vision.InZone(wrist, zone) {
				continue
			}
			position := "raised"
			if vision.OpenPalm(h, e.participation.MinPalmSpread) {
				position = "open_palm"
			} else if e.participation.RequireOpenPalm {
				continue
			}
			sess.modal = &ModalInfo{
				ModalActive:  true,
				TrackID:      f.TrackID,
				PersonName:   f.Name,
				ExternalID:   f.ExternalID,
				Section:      f.Section,
				Confidence:   f.Confidence,
				Timestamp:    now,
				HandSide:     vision.HandSide(f.BBox, wrist),
				HandPosition: position,
				Zone:         zone,
				FaceBBox:     f.BBox,
				HandIndex:    hi,
			}
			m := *sess.modal
			f.Modal = &m
			return &m
		}
	}
	return nil
}

// CloseModal closes the open modal of a session. trackID must name the track
// the modal belongs to.
func (e *Engine) CloseModal(sessionID, trackID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[sessionID]
	if !ok {
		return classify(fmt.Errorf("%w: %s", errSessionNotFound, sessionID))
	}
	if sess.modal == nil || sess.modal.TrackID != trackID {
		return classify(fmt.Errorf("%w: session %s track %s", errNoActiveModal, sessionID, trackID))
	}
	sess.modal = nil
	sess.modalClosed[trackID] = e.now()
	slog.Info("modal closed", "session", sessionID, "track", trackID)
	return nil
}

package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/your-org/classcam/internal/enrollment"
	"github.com/your-org/classcam/internal/observability"
)

// StartEnrollment opens (or replaces) an enrollment session, creating and
// persisting the section when it does not exist yet.
func (e *Engine) StartEnrollment(ctx context.Context, sessionID, name, externalID, section string, samplesPerAngle int) (enrollment.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existed := e.db.HasSection(section)
	s, err := e.enroll.Start(e.db, sessionID, name, externalID, section, samplesPerAngle)
	if err != nil {
		observability.EnrollmentOutcomes.WithLabelValues("rejected").Inc()
		return enrollment.Status{}, classify(err)
	}
	if !existed {
		slog.Info("section created for enrollment", "section", section)
		if err := e.saveLocked(ctx); err != nil {
			slog.Warn("persist new section", "section", section, "error", err)
		}
	}
	observability.EnrollmentOutcomes.WithLabelValues("started").Inc()
	slog.Info("enrollment started", "session", sessionID, "external_id", externalID, "section", section)
	return e.enroll.Status(s.ID)
}

// ProcessEnrollmentFrame captures one sample for the session's current angle.
func (e *Engine) ProcessEnrollmentFrame(ctx context.Context, sessionID string, frame image.Image) (enrollment.FrameResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enroll.Status(sessionID); err != nil {
		return enrollment.FrameResult{}, classify(err)
	}
	if frame == nil {
		return enrollment.FrameResult{}, validationf("empty frame")
	}

	dets, err := e.detector.Detect(ctx, frame)
	if err != nil {
		return enrollment.FrameResult{}, fmt.Errorf("detect faces: %w", err)
	}
	observability.FramesProcessed.WithLabelValues("enrollment").Inc()

	res, err := e.enroll.ProcessFrame(sessionID, frame, dets)
	if err != nil {
		return res, classify(err)
	}
	return res, nil
}

// AdvanceEnrollmentAngle moves the session to its next capture angle.
func (e *Engine) AdvanceEnrollmentAngle(sessionID string) (enrollment.AdvanceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.enroll.Advance(sessionID)
	if err != nil {
		return res, classify(err)
	}
	slog.Debug("enrollment angle", "session", sessionID, "angle", res.Angle, "all_complete", res.AllComplete)
	return res, nil
}

// FinishResult describes a stored identity.
type FinishResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PersonID     string `json:"person_id"`
	Name         string `json:"name"`
	ExternalID   string `json:"external_id"`
	Section      string `json:"section"`
	TotalSamples int    `json:"total_samples"`
}

// FinishEnrollment stores the captured identity and persists the database.
// When persisting fails the identity stays enrolled in memory and a
// persistence error is returned with the result.
func (e *Engine) FinishEnrollment(ctx context.Context, sessionID string) (FinishResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ident, err := e.enroll.Build(e.db, sessionID)
	if err != nil {
		return FinishResult{}, classify(err)
	}
	if err := e.db.Add(ident); err != nil {
		return FinishResult{}, classify(err)
	}
	e.enroll.Remove(sessionID)
	observability.EnrollmentOutcomes.WithLabelValues("finished").Inc()

	stored, _ := e.db.Get(ident.ExternalID)
	slog.Info("enrollment finished", "session", sessionID, "external_id", stored.ExternalID,
		"section", stored.Section, "samples", stored.SampleCount())

	res := FinishResult{
		Success:      true,
		Message:      fmt.Sprintf("Enrolled %s in %s", stored.Name, stored.Section),
		PersonID:     stored.PersonID,
		Name:         stored.Name,
		ExternalID:   stored.ExternalID,
		Section:      stored.Section,
		TotalSamples: stored.SampleCount(),
	}
	if err := e.saveLocked(ctx); err != nil {
		res.Message = "Enrolled in memory, saving the database failed"
		return res, err
	}
	return res, nil
}

// CancelEnrollment discards an enrollment session.
func (e *Engine) CancelEnrollment(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enroll.Cancel(sessionID); err != nil {
		return classify(err)
	}
	observability.EnrollmentOutcomes.WithLabelValues("cancelled").Inc()
	slog.Info("enrollment cancelled", "session", sessionID)
	return nil
}

// EnrollmentStatus reports the progress of an enrollment session.
func (e *Engine) EnrollmentStatus(sessionID string) (enrollment.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.enroll.Status(sessionID)
	if err != nil {
		return st, classify(err)
	}
	return st, nil
}

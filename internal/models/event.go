package models

import (
	"time"

	"github.com/google/uuid"
)

// FrameTask is the message published to NATS for each captured frame.
type FrameTask struct {
	CameraID  string    `json:"camera_id"`
	FrameID   uuid.UUID `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
	FrameRef  string    `json:"frame_ref"` // MinIO object key
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Section   string    `json:"section,omitempty"` // restricts matching to one section
}

// RecognitionEvent is emitted for every recognized face in a frame.
type RecognitionEvent struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  string     `json:"session_id"`
	TrackID    string     `json:"track_id"`
	Name       string     `json:"name"`
	ExternalID string     `json:"external_id"`
	Section    string     `json:"section"`
	Similarity float32    `json:"similarity"`
	Cached     bool       `json:"cached"`
	BBox       [4]float32 `json:"bbox"` // x1, y1, x2, y2
	HandRaised bool       `json:"hand_raised,omitempty"`
	FrameRef   string     `json:"frame_ref,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

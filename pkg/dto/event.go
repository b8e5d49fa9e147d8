package dto

import "github.com/google/uuid"

// EventResponse is a recognized face as delivered to live clients.
type EventResponse struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  string     `json:"session_id"`
	TrackID    string     `json:"track_id"`
	Name       string     `json:"name"`
	ExternalID string     `json:"external_id"`
	Section    string     `json:"section"`
	Similarity float32    `json:"similarity"`
	Cached     bool       `json:"cached"`
	BBox       [4]float32 `json:"bbox"`
	FrameRef   string     `json:"frame_ref,omitempty"`
	Timestamp  string     `json:"timestamp"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type      string        `json:"type"` // face_recognized
	SessionID string        `json:"session_id"`
	Data      EventResponse `json:"data"`
}

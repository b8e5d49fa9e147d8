package dto

// StartEnrollmentRequest opens a capture session. SessionID is generated
// when empty.
type StartEnrollmentRequest struct {
	SessionID       string `json:"session_id"`
	Name            string `json:"name"`
	ExternalID      string `json:"external_id"`
	Section         string `json:"section"`
	SamplesPerAngle int    `json:"samples_per_angle"`
}

// FrameRequest carries one base64 image, optionally as a data URL.
type FrameRequest struct {
	Image string `json:"image" form:"image"`
}

package dto

type RecognizeRequest struct {
	Image     string `json:"image" form:"image"`
	Section   string `json:"section" form:"section"`
	SessionID string `json:"session_id" form:"session_id"`
	// EnableHandDetection defaults to true when omitted.
	EnableHandDetection *bool `json:"enable_hand_detection,omitempty" form:"enable_hand_detection"`
}

type CloseModalResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	TrackID   string `json:"track_id"`
}

type SearchRequest struct {
	Image   string `json:"image" form:"image"`
	Section string `json:"section" form:"section"`
	TopK    int    `json:"top_k" form:"top_k"`
}

type SearchMatch struct {
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	ExternalID string  `json:"external_id"`
	Section    string  `json:"section"`
	Similarity float32 `json:"similarity"`
}

type SearchResponse struct {
	Matches []SearchMatch `json:"matches"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

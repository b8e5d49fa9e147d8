package dto

type CreateSectionRequest struct {
	Name string `json:"name" binding:"required"`
}

type SectionResponse struct {
	Name         string `json:"name"`
	PersonCount  int    `json:"person_count"`
	TotalSamples int    `json:"total_samples"`
}

type SectionListResponse struct {
	Sections []SectionResponse `json:"sections"`
}

type DeleteSectionResponse struct {
	Section        string `json:"section"`
	RemovedMembers int    `json:"removed_members"`
}

type MemberResponse struct {
	PersonID         string   `json:"person_id"`
	Name             string   `json:"name"`
	ExternalID       string   `json:"external_id"`
	Samples          int      `json:"samples"`
	AnglesCollected  []string `json:"angles_collected"`
	RegistrationDate string   `json:"registration_date,omitempty"`
}

type MemberListResponse struct {
	Section string           `json:"section"`
	Members []MemberResponse `json:"members"`
}

type AvailabilityResponse struct {
	ExternalID string `json:"external_id"`
	Available  bool   `json:"available"`
	Reason     string `json:"reason,omitempty"`
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/pkg/dto"
)

type SectionHandler struct {
	eng *engine.Engine
}

func NewSectionHandler(eng *engine.Engine) *SectionHandler {
	return &SectionHandler{eng: eng}
}

func (h *SectionHandler) List(c *gin.Context) {
	sections := h.eng.ListSections()
	resp := make([]dto.SectionResponse, 0, len(sections))
	for _, s := range sections {
		resp = append(resp, dto.SectionResponse{
			Name:         s.Name,
			PersonCount:  s.PersonCount,
			TotalSamples: s.TotalSamples,
		})
	}
	c.JSON(http.StatusOK, dto.SectionListResponse{Sections: resp})
}

func (h *SectionHandler) Create(c *gin.Context) {
	var req dto.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.eng.CreateSection(c.Request.Context(), req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.SectionResponse{Name: req.Name})
}

func (h *SectionHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	n, err := h.eng.DeleteSection(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteSectionResponse{Section: name, RemovedMembers: n})
}

func (h *SectionHandler) Members(c *gin.Context) {
	name := c.Param("name")
	members, err := h.eng.ListSectionMembers(name)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]dto.MemberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, memberResponse(m))
	}
	c.JSON(http.StatusOK, dto.MemberListResponse{Section: name, Members: resp})
}

func memberResponse(m engine.Member) dto.MemberResponse {
	r := dto.MemberResponse{
		PersonID:        m.PersonID,
		Name:            m.Name,
		ExternalID:      m.ExternalID,
		Samples:         m.Samples,
		AnglesCollected: m.AnglesCollected,
	}
	if r.AnglesCollected == nil {
		r.AnglesCollected = []string{}
	}
	if !m.RegisteredAt.IsZero() {
		r.RegistrationDate = m.RegisteredAt.UTC().Format(time.RFC3339)
	}
	return r
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/pkg/dto"
)

type RecognitionHandler struct {
	eng *engine.Engine
}

func NewRecognitionHandler(eng *engine.Engine) *RecognitionHandler {
	return &RecognitionHandler{eng: eng}
}

// Recognize runs detection, tracking and matching on one frame. Omitting
// session_id starts a new session.
func (h *RecognitionHandler) Recognize(c *gin.Context) {
	var req dto.RecognizeRequest
	frame, err := frameOrNil(bindFrame(c, &req, func() string { return req.Image }))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if req.EnableHandDetection != nil {
		ctx = engine.WithHandDetection(ctx, *req.EnableHandDetection)
	}
	res, err := h.eng.Recognize(ctx, frame, req.Section, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RecognitionHandler) ClearSession(c *gin.Context) {
	session := c.Param("session")
	if err := h.eng.ClearSession(session); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session, "cleared": true})
}

// CloseModal closes the raised-hand modal of a tracked face.
func (h *RecognitionHandler) CloseModal(c *gin.Context) {
	session, track := c.Param("session"), c.Param("track")
	if err := h.eng.CloseModal(session, track); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CloseModalResponse{Success: true, Message: "Modal closed", SessionID: session, TrackID: track})
}

// Search returns the closest identities to the largest face, ignoring the
// match threshold.
func (h *RecognitionHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	frame, err := bindFrame(c, &req, func() string { return req.Image })
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	matches, err := h.eng.Search(c.Request.Context(), frame, req.Section, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := dto.SearchResponse{Matches: make([]dto.SearchMatch, 0, len(matches))}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, dto.SearchMatch{
			PersonID:   m.PersonID,
			Name:       m.Name,
			ExternalID: m.ExternalID,
			Section:    m.Section,
			Similarity: m.Similarity,
		})
	}
	c.JSON(http.StatusOK, resp)
}

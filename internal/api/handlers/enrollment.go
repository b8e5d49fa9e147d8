package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/pkg/dto"
)

type EnrollmentHandler struct {
	eng *engine.Engine
}

func NewEnrollmentHandler(eng *engine.Engine) *EnrollmentHandler {
	return &EnrollmentHandler{eng: eng}
}

func (h *EnrollmentHandler) Start(c *gin.Context) {
	var req dto.StartEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = "enroll_" + uuid.NewString()
	}

	st, err := h.eng.StartEnrollment(c.Request.Context(), req.SessionID, req.Name, req.ExternalID, req.Section, req.SamplesPerAngle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *EnrollmentHandler) Status(c *gin.Context) {
	st, err := h.eng.EnrollmentStatus(c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Frame captures one sample. Rejected frames still answer 200 with
// success=false and a message.
func (h *EnrollmentHandler) Frame(c *gin.Context) {
	var req dto.FrameRequest
	frame, err := frameOrNil(bindFrame(c, &req, func() string { return req.Image }))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.eng.ProcessEnrollmentFrame(c.Request.Context(), c.Param("session"), frame)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *EnrollmentHandler) Advance(c *gin.Context) {
	res, err := h.eng.AdvanceEnrollmentAngle(c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Finish stores the identity. A failed save still returns the enrolled
// identity, with status 500.
func (h *EnrollmentHandler) Finish(c *gin.Context) {
	res, err := h.eng.FinishEnrollment(c.Request.Context(), c.Param("session"))
	if err != nil {
		if res.Success {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	session := c.Param("session")
	if err := h.eng.CancelEnrollment(session); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session, "cancelled": true})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/pkg/dto"
)

type IdentityHandler struct {
	eng *engine.Engine
}

func NewIdentityHandler(eng *engine.Engine) *IdentityHandler {
	return &IdentityHandler{eng: eng}
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	m, err := h.eng.DeleteIdentity(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberResponse(m))
}

// Available never fails; an unusable id is reported in the body.
func (h *IdentityHandler) Available(c *gin.Context) {
	id := c.Param("external_id")
	a := h.eng.CheckIDAvailable(id)
	c.JSON(http.StatusOK, dto.AvailabilityResponse{ExternalID: id, Available: a.Available, Reason: a.Reason})
}

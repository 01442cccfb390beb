package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/civicvoice/internal/services"
)

type ComplaintHandler struct {
	svc services.ComplaintService
}

func NewComplaintHandler(svc services.ComplaintService) *ComplaintHandler {
	return &ComplaintHandler{svc: svc}
}

// Get answers one call's row when call_id is given. Complaint numbers repeat
// across calls, so without it every matching row is returned.
func (h *ComplaintHandler) Get(c *gin.Context) {
	if _, ok := requireOperatorID(c); !ok {
		return
	}

	complaintID := c.Param("complaint_id")
	if callID := c.Query("call_id"); callID != "" {
		d, err := h.svc.Get(c.Request.Context(), callID, complaintID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
		return
	}

	rows, err := h.svc.ListByComplaintID(c.Request.Context(), complaintID, int64(queryLimit(c, 20, 200)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"complaint_id": complaintID,
		"complaints":   rows,
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/civicvoice/internal/services"
	"github.com/yoockh/civicvoice/internal/utils"
)

type ConversationHandler struct {
	svc     services.ConversationService
	archive services.ArchiveService
}

// NewConversationHandler accepts a nil archive; Archive then answers 503.
func NewConversationHandler(svc services.ConversationService, archive services.ArchiveService) *ConversationHandler {
	return &ConversationHandler{svc: svc, archive: archive}
}

func (h *ConversationHandler) ListByCall(c *gin.Context) {
	if _, ok := requireOperatorID(c); !ok {
		return
	}

	callID := c.Param("call_id")
	rows, err := h.svc.ListByCall(c.Request.Context(), callID, queryLimit(c, 500, 2000))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":       callID,
		"conversations": rows,
	})
}

// Archive answers with a short-lived download URL for the call transcript.
func (h *ConversationHandler) Archive(c *gin.Context) {
	if _, ok := requireOperatorID(c); !ok {
		return
	}
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, APIError{Code: utils.CodeUnavailable, Message: "transcript archive is not configured"})
		return
	}

	callID := c.Param("call_id")
	u, err := h.archive.URL(c.Request.Context(), callID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "url": u})
}

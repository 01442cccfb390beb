package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/call"
	"github.com/yoockh/civicvoice/internal/utils"
)

// CallControl is the part of call.Controller the API drives.
type CallControl interface {
	StartCall(ctx context.Context) (call.State, error)
	EndCall(ctx context.Context) error
	ClearHistory(ctx context.Context) error
	Snapshot(ctx context.Context) (call.Snapshot, error)
}

type CallHandler struct {
	ctl CallControl
	log *logrus.Logger
}

func NewCallHandler(ctl CallControl, log *logrus.Logger) *CallHandler {
	return &CallHandler{ctl: ctl, log: log}
}

type CallStateResponse struct {
	State  call.State `json:"state"`
	CallID string     `json:"call_id,omitempty"`
	Error  string     `json:"error,omitempty"`
}

func controlError(op string, err error) error {
	if errors.Is(err, call.ErrStopped) {
		return utils.E(utils.CodeUnavailable, op, "call desk is shutting down", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return utils.E(utils.CodeTimeout, op, "call desk did not answer", err)
	}
	return utils.E(utils.CodeInternal, op, "call desk failed", err)
}

// Toggle is the single call button.
func (h *CallHandler) Toggle(c *gin.Context) {
	const op = "CallHandler.Toggle"
	operatorID, ok := requireOperatorID(c)
	if !ok {
		return
	}

	st, err := h.ctl.StartCall(c.Request.Context())
	if err != nil {
		writeError(c, controlError(op, err))
		return
	}
	snap, err := h.ctl.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, controlError(op, err))
		return
	}
	if h.log != nil {
		h.log.WithFields(logrus.Fields{"operator": operatorID, "state": st}).Info("call toggled")
	}
	c.JSON(http.StatusOK, CallStateResponse{State: st, CallID: snap.CallID, Error: snap.Error})
}

func (h *CallHandler) End(c *gin.Context) {
	const op = "CallHandler.End"
	if _, ok := requireOperatorID(c); !ok {
		return
	}
	if err := h.ctl.EndCall(c.Request.Context()); err != nil {
		writeError(c, controlError(op, err))
		return
	}
	c.JSON(http.StatusOK, CallStateResponse{State: call.StateIdle})
}

func (h *CallHandler) Get(c *gin.Context) {
	const op = "CallHandler.Get"
	if _, ok := requireOperatorID(c); !ok {
		return
	}
	snap, err := h.ctl.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, controlError(op, err))
		return
	}
	snap.Turns = nil
	c.JSON(http.StatusOK, snap)
}

func (h *CallHandler) Transcript(c *gin.Context) {
	const op = "CallHandler.Transcript"
	if _, ok := requireOperatorID(c); !ok {
		return
	}
	snap, err := h.ctl.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, controlError(op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":          snap.State,
		"turns":          snap.Turns,
		"caller_partial": snap.CallerPartial,
		"agent_partial":  snap.AgentPartial,
	})
}

func (h *CallHandler) ClearHistory(c *gin.Context) {
	const op = "CallHandler.ClearHistory"
	if _, ok := requireOperatorID(c); !ok {
		return
	}
	if err := h.ctl.ClearHistory(c.Request.Context()); err != nil {
		writeError(c, controlError(op, err))
		return
	}
	c.Status(http.StatusNoContent)
}

package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/civicvoice/internal/models"
	mongorepo "github.com/yoockh/civicvoice/internal/repositories/mongo"
	"github.com/yoockh/civicvoice/internal/utils"
)

type CallService interface {
	Start(ctx context.Context, callID, model, voice string, startedAt time.Time) (*models.Call, error)
	Get(ctx context.Context, callID string) (*models.Call, error)
	End(ctx context.Context, callID, reason string, turnCount int, endedAt time.Time) error
	AttachComplaint(ctx context.Context, callID, complaintID string) error
	ListRecent(ctx context.Context, limit int64) ([]models.Call, error)
}

type callService struct {
	calls mongorepo.CallRepository
}

func NewCallService(calls mongorepo.CallRepository) CallService {
	return &callService{calls: calls}
}

func (s *callService) Start(ctx context.Context, callID, model, voice string, startedAt time.Time) (*models.Call, error) {
	const op = "CallService.Start"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}

	call := &models.Call{
		CallID:    callID,
		Status:    "active",
		Model:     model,
		Voice:     voice,
		CreatedAt: startedAt.UTC(),
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create call", err)
	}
	return call, nil
}

func (s *callService) Get(ctx context.Context, callID string) (*models.Call, error) {
	const op = "CallService.Get"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	out, err := s.calls.GetByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "call not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get call", err)
	}
	return out, nil
}

func (s *callService) End(ctx context.Context, callID, reason string, turnCount int, endedAt time.Time) error {
	const op = "CallService.End"

	call, err := s.Get(ctx, callID)
	if err != nil {
		return err
	}

	dur := int64(endedAt.Sub(call.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}
	if err := s.calls.End(ctx, callID, reason, endedAt, dur, turnCount); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to end call", err)
	}
	return nil
}

func (s *callService) AttachComplaint(ctx context.Context, callID, complaintID string) error {
	const op = "CallService.AttachComplaint"

	if callID == "" || complaintID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call_id and complaint_id are required", nil)
	}
	if err := s.calls.SetComplaint(ctx, callID, complaintID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to attach complaint", err)
	}
	return nil
}

func (s *callService) ListRecent(ctx context.Context, limit int64) ([]models.Call, error) {
	const op = "CallService.ListRecent"

	out, err := s.calls.ListRecent(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list calls", err)
	}
	return out, nil
}

package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/cache"
	"github.com/yoockh/civicvoice/internal/models"
	mongorepo "github.com/yoockh/civicvoice/internal/repositories/mongo"
	"github.com/yoockh/civicvoice/internal/utils"
)

// ComplaintService tracks deliveries per call. The same complaint number may
// appear in more than one call; each call keeps its own row.
type ComplaintService interface {
	// Pending satisfies sink.Ledger.
	Pending(ctx context.Context, callID string, c models.Complaint) error
	MarkDelivered(ctx context.Context, callID, complaintID string) error
	MarkFailed(ctx context.Context, callID, complaintID string, cause error) error
	MarkDuplicate(ctx context.Context, callID, complaintID string) error
	Get(ctx context.Context, callID, complaintID string) (*models.ComplaintDelivery, error)
	ListByComplaintID(ctx context.Context, complaintID string, limit int64) ([]models.ComplaintDelivery, error)
}

type complaintService struct {
	complaints mongorepo.ComplaintRepository
	cache      cache.Cache
	ttl        time.Duration
	log        *logrus.Logger
}

func NewComplaintService(complaints mongorepo.ComplaintRepository, c cache.Cache, log *logrus.Logger) ComplaintService {
	return &complaintService{complaints: complaints, cache: c, ttl: 5 * time.Minute, log: log}
}

func (s *complaintService) Pending(ctx context.Context, callID string, c models.Complaint) error {
	const op = "ComplaintService.Pending"

	if c.ID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "complaint id is required", nil)
	}
	if err := s.complaints.UpsertPending(ctx, callID, c); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record complaint", err)
	}
	return nil
}

func (s *complaintService) MarkDelivered(ctx context.Context, callID, complaintID string) error {
	return s.mark(ctx, "ComplaintService.MarkDelivered", callID, complaintID, models.DeliveryDelivered, "")
}

func (s *complaintService) MarkFailed(ctx context.Context, callID, complaintID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.mark(ctx, "ComplaintService.MarkFailed", callID, complaintID, models.DeliveryFailed, msg)
}

func (s *complaintService) MarkDuplicate(ctx context.Context, callID, complaintID string) error {
	return s.mark(ctx, "ComplaintService.MarkDuplicate", callID, complaintID, models.DeliveryDuplicate, "")
}

func (s *complaintService) mark(ctx context.Context, op, callID, complaintID, status, lastError string) error {
	if complaintID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "complaint id is required", nil)
	}
	if err := s.complaints.MarkAttempt(ctx, callID, complaintID, status, lastError); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update delivery status", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.ComplaintKey(callID, complaintID)); err != nil && s.log != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"call_id":      callID,
				"complaint_id": complaintID,
			}).Warn("complaint cache invalidation failed")
		}
	}
	return nil
}

func (s *complaintService) Get(ctx context.Context, callID, complaintID string) (*models.ComplaintDelivery, error) {
	const op = "ComplaintService.Get"

	if callID == "" || complaintID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call id and complaint id are required", nil)
	}

	key := cache.ComplaintKey(callID, complaintID)
	if s.cache != nil {
		var cached models.ComplaintDelivery
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	d, err := s.complaints.Get(ctx, callID, complaintID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "complaint not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get complaint", err)
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, d, s.ttl)
	}
	return d, nil
}

// ListByComplaintID returns every call's row for a complaint number, newest first.
func (s *complaintService) ListByComplaintID(ctx context.Context, complaintID string, limit int64) ([]models.ComplaintDelivery, error) {
	const op = "ComplaintService.ListByComplaintID"

	if complaintID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "complaint id is required", nil)
	}
	rows, err := s.complaints.ListByComplaintID(ctx, complaintID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list complaints", err)
	}
	if len(rows) == 0 {
		return nil, utils.E(utils.CodeNotFound, op, "complaint not found", utils.ErrNotFound)
	}
	return rows, nil
}

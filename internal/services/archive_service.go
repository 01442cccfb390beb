package services

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/storage"
	"github.com/yoockh/civicvoice/internal/utils"
)

// Transcript is the archived form of one call.
type Transcript struct {
	CallID     string        `json:"call_id"`
	ArchivedAt time.Time     `json:"archived_at"`
	Turns      []models.Turn `json:"turns"`
}

type ArchiveService interface {
	Archive(ctx context.Context, callID string, turns []models.Turn) (string, error)
	URL(ctx context.Context, callID string) (string, error)
}

type archiveService struct {
	uploader storage.Uploader
	signer   storage.Signer
	urlTTL   time.Duration
}

// NewArchiveService accepts a nil signer; URL then fails with UNAVAILABLE.
func NewArchiveService(uploader storage.Uploader, signer storage.Signer) ArchiveService {
	return &archiveService{uploader: uploader, signer: signer, urlTTL: 15 * time.Minute}
}

func (s *archiveService) Archive(ctx context.Context, callID string, turns []models.Turn) (string, error) {
	const op = "ArchiveService.Archive"

	if callID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	if s.uploader == nil {
		return "", utils.E(utils.CodeInternal, op, "uploader is not configured", nil)
	}
	if turns == nil {
		turns = []models.Turn{}
	}

	b, err := json.MarshalIndent(Transcript{CallID: callID, ArchivedAt: time.Now().UTC(), Turns: turns}, "", "  ")
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to encode transcript", err)
	}

	path, err := s.uploader.Upload(ctx, storage.TranscriptObject(callID), "application/json", bytes.NewReader(b))
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to upload transcript", err)
	}
	return path, nil
}

func (s *archiveService) URL(ctx context.Context, callID string) (string, error) {
	const op = "ArchiveService.URL"

	if callID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	if s.signer == nil {
		return "", utils.E(utils.CodeUnavailable, op, "signed urls are not configured", nil)
	}
	u, err := s.signer.SignedGetURL(ctx, storage.TranscriptObject(callID), s.urlTTL)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign transcript url", err)
	}
	return u, nil
}

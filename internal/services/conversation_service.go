package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yoockh/civicvoice/internal/extract"
	"github.com/yoockh/civicvoice/internal/models"
	pgrepo "github.com/yoockh/civicvoice/internal/repositories/postgres"
	"github.com/yoockh/civicvoice/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConversationService interface {
	// AppendTurns persists finalized turns in order. Agent turns are stored
	// without the hidden record block; the parsed record goes to metadata.
	AppendTurns(ctx context.Context, callID string, turns []models.Turn) ([]models.ConversationLog, error)
	ListByCall(ctx context.Context, callID string, limit int) ([]models.ConversationLog, error)
}

type conversationService struct {
	convos pgrepo.ConversationRepo
}

func NewConversationService(convos pgrepo.ConversationRepo) ConversationService {
	return &conversationService{convos: convos}
}

func (s *conversationService) AppendTurns(ctx context.Context, callID string, turns []models.Turn) ([]models.ConversationLog, error) {
	const op = "ConversationService.AppendTurns"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	seq, err := s.convos.NextSeq(ctx, callID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read sequence", err)
	}

	rows := make([]models.ConversationLog, 0, len(turns))
	for _, t := range turns {
		rows = append(rows, conversationRow(callID, seq, t))
		seq++
	}

	if err := s.convos.InsertBatch(ctx, rows); err != nil {
		// (call_id, seq) is unique
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.E(utils.CodeConflict, op, "conversation sequence already taken", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to insert conversation logs", err)
	}
	return rows, nil
}

func conversationRow(callID string, seq int, t models.Turn) models.ConversationLog {
	row := models.ConversationLog{
		ID:        uuid.NewString(),
		CallID:    callID,
		Seq:       seq,
		Role:      string(t.Role),
		Content:   t.Text,
		Timestamp: t.Timestamp.UTC(),
	}
	if t.Role != models.RoleAgent {
		return row
	}

	row.Content = extract.StripRecord(t.Text)
	md := map[string]any{}
	if rec, err := extract.Record(t.Text); err != nil {
		md["record_error"] = err.Error()
	} else if rec != nil {
		md["complaint"] = rec
	}
	if extract.CloseCue(t.Text) {
		md["close_cue"] = true
	}
	if len(md) > 0 {
		b, _ := json.Marshal(md)
		row.Metadata = datatypes.JSON(b)
	}
	return row
}

func (s *conversationService) ListByCall(ctx context.Context, callID string, limit int) ([]models.ConversationLog, error) {
	const op = "ConversationService.ListByCall"

	if callID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}

	rows, err := s.convos.ListByCall(ctx, callID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}

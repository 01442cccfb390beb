package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/utils"
	"gorm.io/gorm"
)

type ConversationRepo interface {
	InsertBatch(ctx context.Context, rows []models.ConversationLog) error
	ListByCall(ctx context.Context, callID string, limit int) ([]models.ConversationLog, error)
	NextSeq(ctx context.Context, callID string) (int, error)
	GetByID(ctx context.Context, id string) (*models.ConversationLog, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) InsertBatch(ctx context.Context, rows []models.ConversationLog) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListByCall returns the call's turns in spoken order.
func (r *conversationRepo) ListByCall(ctx context.Context, callID string, limit int) ([]models.ConversationLog, error) {
	if limit <= 0 {
		limit = 500
	}

	var rows []models.ConversationLog
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *conversationRepo) NextSeq(ctx context.Context, callID string) (int, error) {
	var last *int
	err := r.db.WithContext(ctx).
		Model(&models.ConversationLog{}).
		Where("call_id = ?", callID).
		Select("MAX(seq)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return *last + 1, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (*models.ConversationLog, error) {
	var row models.ConversationLog
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

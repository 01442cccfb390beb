package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ComplaintRepository keys rows on (call_id, complaint id). The agent picks
// complaint numbers from four digits, so they repeat across calls.
type ComplaintRepository interface {
	// UpsertPending creates the delivery row unless the call already has one
	// for the complaint id.
	UpsertPending(ctx context.Context, callID string, c models.Complaint) error
	MarkAttempt(ctx context.Context, callID, complaintID, status, lastError string) error
	Get(ctx context.Context, callID, complaintID string) (*models.ComplaintDelivery, error)
	ListByComplaintID(ctx context.Context, complaintID string, limit int64) ([]models.ComplaintDelivery, error)
	ListByStatus(ctx context.Context, status string, limit int64) ([]models.ComplaintDelivery, error)
}

type complaintRepo struct {
	col *mongo.Collection
}

func NewComplaintRepo(db *mongo.Database) ComplaintRepository {
	return &complaintRepo{col: db.Collection("complaints")}
}

func (r *complaintRepo) UpsertPending(ctx context.Context, callID string, c models.Complaint) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx,
		complaintKey(callID, c.ID),
		bson.M{"$setOnInsert": bson.M{
			"call_id":         callID,
			"complaint":       c,
			"delivery_status": models.DeliveryPending,
			"attempts":        0,
			"created_at":      now,
			"updated_at":      now,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *complaintRepo) MarkAttempt(ctx context.Context, callID, complaintID, status, lastError string) error {
	_, err := r.col.UpdateOne(ctx,
		complaintKey(callID, complaintID),
		bson.M{
			"$set": bson.M{
				"delivery_status": status,
				"last_error":      lastError,
				"updated_at":      time.Now().UTC(),
			},
			"$inc": bson.M{"attempts": 1},
		},
	)
	return err
}

func complaintKey(callID, complaintID string) bson.M {
	return bson.M{"call_id": callID, "complaint.complaint_id": complaintID}
}

func (r *complaintRepo) Get(ctx context.Context, callID, complaintID string) (*models.ComplaintDelivery, error) {
	var d models.ComplaintDelivery
	err := r.col.FindOne(ctx, complaintKey(callID, complaintID)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *complaintRepo) ListByComplaintID(ctx context.Context, complaintID string, limit int64) ([]models.ComplaintDelivery, error) {
	return r.list(ctx, bson.M{"complaint.complaint_id": complaintID}, -1, limit)
}

func (r *complaintRepo) ListByStatus(ctx context.Context, status string, limit int64) ([]models.ComplaintDelivery, error) {
	return r.list(ctx, bson.M{"delivery_status": status}, 1, limit)
}

func (r *complaintRepo) list(ctx context.Context, filter bson.M, order int, limit int64) ([]models.ComplaintDelivery, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: order}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ComplaintDelivery
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

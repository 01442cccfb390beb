package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Call struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	CallID string             `bson:"call_id" json:"call_id"` // uuid v4

	Status    string `bson:"status" json:"status"`                             // active|ended
	EndReason string `bson:"end_reason,omitempty" json:"end_reason,omitempty"` // user|peer_error|peer_close|auto_end|init_failed

	Model string `bson:"model,omitempty" json:"model,omitempty"`
	Voice string `bson:"voice,omitempty" json:"voice,omitempty"`

	TurnCount   int    `bson:"turn_count" json:"turn_count"`
	ComplaintID string `bson:"complaint_id,omitempty" json:"complaint_id,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}

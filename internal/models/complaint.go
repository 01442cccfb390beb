package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Complaint is the structured record the agent embeds at the end of a call.
// The JSON shape is what the agent emits and what the sink receives.
type Complaint struct {
	ID          string `bson:"complaint_id" json:"id"`
	Category    string `bson:"type" json:"type"`
	Department  string `bson:"dept" json:"dept"`
	Location    string `bson:"loc" json:"loc"`
	Status      string `bson:"status" json:"status"`
	Date        string `bson:"date" json:"date"`
	Phone       string `bson:"phone" json:"phone"`
	Description string `bson:"desc" json:"desc"`
	Image       string `bson:"img" json:"img"`
}

const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
	DeliveryDuplicate = "duplicate"
)

// ComplaintDelivery tracks one forwarded complaint through the sink pipeline.
type ComplaintDelivery struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	CallID string             `bson:"call_id" json:"call_id"`

	Complaint Complaint `bson:"complaint" json:"complaint"`

	DeliveryStatus string `bson:"delivery_status" json:"delivery_status"` // pending|delivered|failed|duplicate
	Attempts       int    `bson:"attempts" json:"attempts"`
	LastError      string `bson:"last_error,omitempty" json:"last_error,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Package sink forwards extracted complaints to the external intake service.
// Forwarding is fire and forget from the call's point of view: nothing here
// reports back into a live session.
package sink

import (
	"context"

	"github.com/yoockh/civicvoice/internal/models"
)

// DefaultURL is the intake endpoint of the civic services backend.
const DefaultURL = "https://delhi-sudarshan-backend.onrender.com/api/new-complaint"

// Sink delivers one complaint.
type Sink interface {
	Deliver(ctx context.Context, c models.Complaint) error
}

// Dispatcher hands a complaint off without blocking the caller.
type Dispatcher interface {
	Dispatch(callID string, c models.Complaint)
}

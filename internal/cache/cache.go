// Package cache holds short-lived lookups and delivery claims in redis.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// GetJSON decodes the cached value into dst. A miss is not an error.
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Claim sets key only if it is absent and reports whether this caller won.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ComplaintKey is the cache-aside key for a complaint ledger row.
func ComplaintKey(callID, complaintID string) string {
	return "complaint:" + callID + ":" + complaintID
}

// DeliveredKey is claimed once per call and complaint number across sink
// workers.
func DeliveredKey(callID, complaintID string) string {
	return "delivered:" + callID + ":" + complaintID
}

// Package storage keeps call transcripts in object storage.
package storage

import (
	"context"
	"io"
	"strings"
	"time"
)

// Uploader writes an object and returns where it was stored.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// Signer hands out time-limited read access to private objects.
type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// ObjectStore is a bucket that can both write and sign.
type ObjectStore interface {
	Uploader
	Signer
}

const transcriptPrefix = "transcripts/"

// TranscriptObject names the archived transcript of a call.
func TranscriptObject(callID string) string {
	return transcriptPrefix + strings.Trim(callID, "/") + ".json"
}

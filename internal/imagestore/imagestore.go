// Package imagestore hosts detection snapshots in object storage.
package imagestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Store uploads an image and returns its public URL.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectKey builds the structured object name for a detection snapshot:
// <year>/<incidentID>.jpg.
func ObjectKey(incidentID string, t time.Time) string {
	return fmt.Sprintf("%d/%s.jpg", t.UTC().Year(), incidentID)
}

// DecodeBase64Image accepts both a bare base64 payload and a data URI
// ("data:image/jpeg;base64,...").
func DecodeBase64Image(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("error decoding image payload: %w", err)
	}
	return data, nil
}

// Null is a no-op store for deployments without object storage (and for
// tests). It returns the object key as the URL.
type Null struct{}

func (Null) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return key, nil
}

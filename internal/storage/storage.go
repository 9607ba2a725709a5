package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const archivePrefix = "interviews"

// Uploader persists a finished session archive and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// ArchiveObjectName is a unique object path for one export of a session.
func ArchiveObjectName(sessionID string) string {
	return fmt.Sprintf("%s/%s/%s.zip", archivePrefix, sessionID, uuid.NewString())
}

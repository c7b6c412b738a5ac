// Package blob abstracts the object store holding source images and
// produced artifacts.
//
// Key layout:
//
//	original/{userID}/{jobID}/{index}  - user-submitted page images
//	done/{userID}/{jobID}/{name}       - cleaned images and artifacts
package blob

import (
	"context"
	"fmt"
	"io"
)

// Content types for uploaded artifacts.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
	ContentTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeJPEG = "image/jpeg"
)

// Store is the blob store collaborator. Implementations must be safe
// for concurrent use; pages upload in parallel.
type Store interface {
	// DownloadBlobs fetches every object under prefix into destDir,
	// preserving the key as a relative path.
	DownloadBlobs(ctx context.Context, prefix, destDir string) error

	// UploadBlob stores the contents of r under key.
	UploadBlob(ctx context.Context, key string, r io.Reader, contentType string) error
}

// OriginalPrefix is the key prefix for a job's source images.
func OriginalPrefix(userID int, jobID string) string {
	return fmt.Sprintf("original/%d/%s", userID, jobID)
}

// DoneKey is the key for a produced file of a job.
func DoneKey(userID int, jobID, name string) string {
	return fmt.Sprintf("done/%d/%s/%s", userID, jobID, name)
}

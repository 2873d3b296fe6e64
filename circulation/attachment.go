package circulation

import (
	"fmt"
	"regexp"
	"time"
)

// AttachmentInfo is returned from a successful upload.
type AttachmentInfo struct {
	Key  string `json:"file_key"`
	ETag string `json:"etag"`
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9_.-] with an
// underscore so the original file name can be embedded in an object key.
func SanitizeFileName(name string) string {
	return unsafeKeyChars.ReplaceAllString(name, "_")
}

// BuildAttachmentKey derives the object key for a book attachment. Keys are
// namespaced by book id so per-book listing and purging stay possible, and
// time-qualified so repeated uploads never overwrite in place - the previous
// object is orphaned when Book.FileKey is repointed.
func BuildAttachmentKey(bookID int64, originalName string, at time.Time) string {
	return fmt.Sprintf("books/%d/%d-%s", bookID, at.UnixMilli(), SanitizeFileName(originalName))
}

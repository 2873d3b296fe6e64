// Package minioengine implements the circulation attachment store on
// MinIO-compatible object storage. Blobs are keyed under a per-book prefix
// and never overwritten in place; a re-upload writes a new time-qualified
// key and the catalog repoints Book.FileKey, orphaning the previous object.
package minioengine

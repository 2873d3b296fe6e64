package minioengine

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/libraryops/circulation-go/circulation"
)

const (
	minioErrCodeNoSuchKey    = "NoSuchKey"
	minioErrCodeNoSuchBucket = "NoSuchBucket"

	defaultContentType = "application/octet-stream"
	defaultRegion      = "us-east-1"

	logMsgObjectStored    = "object stored"
	logMsgObjectFetchFail = "failed to fetch object"
	logMsgBucketCreated   = "bucket created"
	logAttrError          = "error"
	logAttrKey            = "key"
	logAttrETag           = "etag"
	logAttrSize           = "size"
	logAttrBucket         = "bucket"
)

// ErrNilClient is returned by NewStore when the supplied client is nil.
var ErrNilClient = errors.New("minio client must not be nil")

// ErrEmptyBucket is returned by NewStore when the bucket name is empty.
var ErrEmptyBucket = errors.New("empty bucket name supplied")

// Logger interface for operational logging of object storage access.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Store implements circulation.AttachmentStore on a MinIO-compatible
// object storage service.
type Store struct {
	client *minio.Client
	bucket string
	logger Logger
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// NewStore creates an attachment store on the given bucket with optional
// configuration.
func NewStore(client *minio.Client, bucket string, options ...Option) (Store, error) {
	if client == nil {
		return Store{}, ErrNilClient
	}

	if bucket == "" {
		return Store{}, ErrEmptyBucket
	}

	store := Store{client: client, bucket: bucket}

	for _, option := range options {
		if err := option(&store); err != nil {
			return Store{}, err
		}
	}

	return store, nil
}

// Put writes a blob under the given key and returns its etag. A key
// collision is last-write-wins; keys built by the Coordinator are
// time-qualified and thus practically unique.
func (s Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = defaultContentType
	}

	info, putErr := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if putErr != nil {
		return "", errors.Join(circulation.ErrStore, putErr)
	}

	s.logDebug(logMsgObjectStored, logAttrKey, key, logAttrETag, info.ETag, logAttrSize, len(data))

	return info.ETag, nil
}

// Get returns the blob and its content type, or the attachment not-found
// sentinel when no object lives under the key.
func (s Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	object, getErr := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if getErr != nil {
		return nil, "", s.wrapObjectError(getErr, key)
	}
	defer func() {
		if closeErr := object.Close(); closeErr != nil {
			s.logWarn(logMsgObjectFetchFail, logAttrError, closeErr.Error(), logAttrKey, key)
		}
	}()

	// GetObject is lazy: a missing key only surfaces on the first read or
	// stat, so fetch the object info before draining the stream.
	info, statErr := object.Stat()
	if statErr != nil {
		return nil, "", s.wrapObjectError(statErr, key)
	}

	data, readErr := io.ReadAll(object)
	if readErr != nil {
		return nil, "", s.wrapObjectError(readErr, key)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	return data, contentType, nil
}

// EnsureBucket provisions the bucket when it does not exist yet. This is a
// deployment concern, invoked by the migrate command, not per request.
func (s Store) EnsureBucket(ctx context.Context) error {
	exists, existsErr := s.client.BucketExists(ctx, s.bucket)
	if existsErr != nil {
		return errors.Join(circulation.ErrStore, existsErr)
	}

	if exists {
		return nil
	}

	makeErr := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: defaultRegion})
	if makeErr != nil {
		return errors.Join(circulation.ErrStore, makeErr)
	}

	s.logInfo(logMsgBucketCreated, logAttrBucket, s.bucket)

	return nil
}

// wrapObjectError maps the service's key/bucket misses onto the circulation
// error taxonomy and everything else onto the store failure class.
func (s Store) wrapObjectError(err error, key string) error {
	response := minio.ToErrorResponse(err)
	if response.Code == minioErrCodeNoSuchKey || response.Code == minioErrCodeNoSuchBucket {
		return circulation.ErrAttachmentNotFound
	}

	s.logError(logMsgObjectFetchFail, logAttrError, err.Error(), logAttrKey, key)

	return errors.Join(circulation.ErrStore, err)
}

func (s Store) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s Store) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s Store) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

var _ circulation.AttachmentStore = Store{}

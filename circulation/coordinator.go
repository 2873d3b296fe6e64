package circulation

import (
	"context"
	"time"
)

const (
	logMsgBookBorrowed      = "book borrowed"
	logMsgBorrowReturned    = "borrow record returned"
	logMsgBookDeleted       = "book deleted"
	logMsgAttachmentStored  = "attachment stored"
	logAttrBookID           = "book_id"
	logAttrUserID           = "user_id"
	logAttrBorrowID         = "borrow_id"
	logAttrAttachmentKey    = "attachment_key"
	logAttrAttachmentETag   = "attachment_etag"
	logAttrPurgedForDeleted = "purged_ledger_entries"
)

// Logger interface for operational logging of circulation decisions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CatalogStore holds book records and their availability flag. GetForUpdate
// must lock the row for the remainder of the surrounding transaction so
// concurrent circulation operations on the same book serialize.
type CatalogStore interface {
	Add(ctx context.Context, fields BookFields) (Book, error)
	Update(ctx context.Context, id int64, fields BookFields) (Book, error)
	Remove(ctx context.Context, id int64) error
	Find(ctx context.Context, query string) ([]Book, error)
	Get(ctx context.Context, id int64) (Book, error)
	GetForUpdate(ctx context.Context, id int64) (Book, error)
	SetStatus(ctx context.Context, id int64, status BookStatus) error
	AttachmentKey(ctx context.Context, id int64) (string, error)
	SetAttachmentKey(ctx context.Context, id int64, key string) error
}

// Ledger is the append-mostly log of borrow records.
type Ledger interface {
	OpenEntries(ctx context.Context, bookID int64) ([]BorrowRecord, error)
	Create(ctx context.Context, bookID int64, userID int64) (BorrowRecord, error)
	Close(ctx context.Context, recordID int64) (BorrowRecord, error)
	GetEntryForUpdate(ctx context.Context, recordID int64) (BorrowRecord, error)
	PurgeForBook(ctx context.Context, bookID int64) (int64, error)
	ListAll(ctx context.Context) ([]BorrowRecord, error)
	ListForUser(ctx context.Context, userID int64, openOnly bool) ([]UserLoan, error)
}

// AttachmentStore is a keyed binary object store. Put is last-write-wins
// under key collision; keys built by BuildAttachmentKey are time-qualified
// and thus practically unique.
type AttachmentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (etag string, err error)
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
}

// TxRunner executes fn inside a single relational transaction. Store methods
// invoked with the context passed to fn take part in that transaction;
// returning a non-nil error rolls everything back.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Coordinator validates and executes circulation operations, keeping the
// catalog's availability flag and the ledger's open entries in agreement.
// Store handles are injected explicitly so tests can substitute doubles.
type Coordinator struct {
	catalog     CatalogStore
	ledger      Ledger
	attachments AttachmentStore
	users       UserDirectory
	tx          TxRunner
	logger      Logger
	now         func() time.Time
}

// Option defines a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger for the Coordinator.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for attachment keys. Tests use
// this to produce deterministic object keys.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a Coordinator with the given store handles and
// optional configuration.
func NewCoordinator(
	catalog CatalogStore,
	ledger Ledger,
	attachments AttachmentStore,
	users UserDirectory,
	tx TxRunner,
	options ...Option,
) *Coordinator {

	coordinator := &Coordinator{
		catalog:     catalog,
		ledger:      ledger,
		attachments: attachments,
		users:       users,
		tx:          tx,
		now:         time.Now,
	}

	for _, option := range options {
		option(coordinator)
	}

	return coordinator
}

// ListBooks returns catalog entries, filtered by a case-insensitive
// substring match on title/author when query is non-empty, each joined with
// its open borrow (if any).
func (c *Coordinator) ListBooks(ctx context.Context, query string) ([]Book, error) {
	return c.catalog.Find(ctx, query)
}

// CreateBook adds a catalog entry. Status defaults to available and an
// absent or negative quantity coerces to 0.
func (c *Coordinator) CreateBook(ctx context.Context, fields BookFields) (Book, error) {
	return c.catalog.Add(ctx, fields)
}

// UpdateBook replaces the mutable attributes of a catalog entry. Unlike
// CreateBook it rejects a missing or negative quantity.
func (c *Coordinator) UpdateBook(ctx context.Context, id int64, fields BookFields) (Book, error) {
	if err := fields.ValidateForUpdate(); err != nil {
		return Book{}, err
	}

	return c.catalog.Update(ctx, id, fields)
}

// Borrow lends the book to the user. The book's availability is re-derived
// from the ledger under a row lock; a stale Book.Status alone is never
// trusted. The ledger entry and the status flip are applied atomically.
func (c *Coordinator) Borrow(ctx context.Context, bookID int64, userID int64) (BorrowRecord, error) {
	userExists, lookupErr := c.users.Exists(ctx, userID)
	if lookupErr != nil {
		return BorrowRecord{}, lookupErr
	}

	if !userExists {
		return BorrowRecord{}, ErrUserNotFound
	}

	var record BorrowRecord

	txErr := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := c.catalog.GetForUpdate(ctx, bookID); err != nil {
			return err
		}

		openEntries, err := c.ledger.OpenEntries(ctx, bookID)
		if err != nil {
			return err
		}

		if len(openEntries) > 0 {
			return ErrBookAlreadyBorrowed
		}

		record, err = c.ledger.Create(ctx, bookID, userID)
		if err != nil {
			return err
		}

		return c.catalog.SetStatus(ctx, bookID, StatusBorrowed)
	})

	if txErr != nil {
		return BorrowRecord{}, txErr
	}

	c.logInfo(logMsgBookBorrowed, logAttrBookID, bookID, logAttrUserID, userID, logAttrBorrowID, record.ID)

	return record, nil
}

// Return closes the borrow record and flips the book back to available, as
// one atomic unit. Returning an already-returned record is a conflict, not
// a silent no-op.
func (c *Coordinator) Return(ctx context.Context, borrowID int64) (BorrowRecord, error) {
	var record BorrowRecord

	txErr := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := c.ledger.GetEntryForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}

		if current.Status == BorrowReturned {
			return ErrBorrowAlreadyReturned
		}

		record, err = c.ledger.Close(ctx, borrowID)
		if err != nil {
			return err
		}

		return c.catalog.SetStatus(ctx, record.BookID, StatusAvailable)
	})

	if txErr != nil {
		return BorrowRecord{}, txErr
	}

	c.logInfo(logMsgBorrowReturned, logAttrBorrowID, record.ID, logAttrBookID, record.BookID)

	return record, nil
}

// DeleteBook purges the book's ledger history and removes the catalog row.
// It refuses to delete a book with an open borrow.
func (c *Coordinator) DeleteBook(ctx context.Context, bookID int64) error {
	var purged int64

	txErr := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := c.catalog.GetForUpdate(ctx, bookID); err != nil {
			return err
		}

		openEntries, err := c.ledger.OpenEntries(ctx, bookID)
		if err != nil {
			return err
		}

		if len(openEntries) > 0 {
			return ErrActiveBorrowExists
		}

		purged, err = c.ledger.PurgeForBook(ctx, bookID)
		if err != nil {
			return err
		}

		return c.catalog.Remove(ctx, bookID)
	})

	if txErr != nil {
		return txErr
	}

	c.logInfo(logMsgBookDeleted, logAttrBookID, bookID, logAttrPurgedForDeleted, purged)

	return nil
}

// UploadAttachment writes the blob to the attachment store and repoints the
// book's file key inside a short transaction. The blob write happens before
// the relational update: a failed repoint leaves an orphaned object, which
// is garbage, never corruption. Nothing is written when the book is absent.
func (c *Coordinator) UploadAttachment(
	ctx context.Context,
	bookID int64,
	data []byte,
	originalName string,
	contentType string,
) (AttachmentInfo, error) {

	if len(data) == 0 {
		return AttachmentInfo{}, ErrEmptyUpload
	}

	if _, err := c.catalog.Get(ctx, bookID); err != nil {
		return AttachmentInfo{}, err
	}

	key := BuildAttachmentKey(bookID, originalName, c.now())

	etag, putErr := c.attachments.Put(ctx, key, data, contentType)
	if putErr != nil {
		return AttachmentInfo{}, putErr
	}

	txErr := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := c.catalog.GetForUpdate(ctx, bookID); err != nil {
			return err
		}

		return c.catalog.SetAttachmentKey(ctx, bookID, key)
	})

	if txErr != nil {
		return AttachmentInfo{}, txErr
	}

	c.logInfo(logMsgAttachmentStored, logAttrBookID, bookID, logAttrAttachmentKey, key, logAttrAttachmentETag, etag)

	return AttachmentInfo{Key: key, ETag: etag}, nil
}

// DownloadAttachment returns the current attachment blob for the book.
func (c *Coordinator) DownloadAttachment(ctx context.Context, bookID int64) ([]byte, string, error) {
	key, err := c.catalog.AttachmentKey(ctx, bookID)
	if err != nil {
		return nil, "", err
	}

	if key == "" {
		return nil, "", ErrAttachmentNotFound
	}

	return c.attachments.Get(ctx, key)
}

// ListBorrowRecords returns the full ledger joined with book and user
// attributes for display.
func (c *Coordinator) ListBorrowRecords(ctx context.Context) ([]BorrowRecord, error) {
	return c.ledger.ListAll(ctx)
}

// ListUserBorrowed returns the user's open loans joined with their books.
func (c *Coordinator) ListUserBorrowed(ctx context.Context, userID int64) ([]UserLoan, error) {
	return c.ledger.ListForUser(ctx, userID, true)
}

func (c *Coordinator) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

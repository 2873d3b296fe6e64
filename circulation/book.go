package circulation

import "time"

// BookStatus is the denormalized availability flag stored on a book row.
// It is derived from the ledger: "borrowed" exactly when an open borrow
// record exists for the book. Only the Coordinator writes it.
type BookStatus string

const (
	StatusAvailable BookStatus = "available"
	StatusBorrowed  BookStatus = "borrowed"
)

// Book is a catalog entry. Quantity is an informational inventory count, it
// is neither decremented on borrow nor checked for availability - the
// catalog treats every book record as a single lendable unit.
type Book struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Quantity    int        `json:"quantity"`
	Status      BookStatus `json:"status"`
	FileKey     string     `json:"file_key,omitempty"`

	// Joined from the ledger by CatalogStore.Find: the open borrow for this
	// book, when one exists.
	BorrowedBy     *int64 `json:"borrowed_by,omitempty"`
	ActiveBorrowID *int64 `json:"active_borrow_id,omitempty"`
}

// BookFields carries caller-supplied attributes for creating or updating a
// catalog entry. A nil Quantity means the field was absent from the request.
type BookFields struct {
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Quantity    *int       `json:"quantity"`
}

// NormalizedQuantity clamps the quantity for catalog adds: an absent or
// negative value coerces to 0.
func (f BookFields) NormalizedQuantity() int {
	if f.Quantity == nil || *f.Quantity < 0 {
		return 0
	}

	return *f.Quantity
}

// ValidateForUpdate enforces the stricter update contract: quantity must be
// present and non-negative.
func (f BookFields) ValidateForUpdate() error {
	if f.Quantity == nil || *f.Quantity < 0 {
		return ErrInvalidQuantity
	}

	return nil
}

package circulation

import "time"

// BorrowStatus is the lifecycle state of a ledger entry. An entry is created
// open ("borrowed") and transitions exactly once to "returned".
type BorrowStatus string

const (
	BorrowOpen     BorrowStatus = "borrowed"
	BorrowReturned BorrowStatus = "returned"
)

// BorrowRecord is a ledger entry recording one loan. The joined fields are
// populated only by the display projections (Ledger.ListAll).
type BorrowRecord struct {
	ID         int64        `json:"id"`
	BookID     int64        `json:"book_id"`
	UserID     int64        `json:"user_id"`
	BorrowDate time.Time    `json:"borrow_date"`
	ReturnDate *time.Time   `json:"return_date,omitempty"`
	Status     BorrowStatus `json:"status"`

	BookTitle  string `json:"book_title,omitempty"`
	BookAuthor string `json:"book_author,omitempty"`
	Username   string `json:"username,omitempty"`
}

// UserLoan is the per-user projection of an open ledger entry joined with
// its book, as shown on a reader's "currently borrowed" list.
type UserLoan struct {
	BorrowID   int64        `json:"borrow_id"`
	BookID     int64        `json:"book_id"`
	Title      string       `json:"title"`
	Author     string       `json:"author"`
	BorrowDate time.Time    `json:"borrow_date"`
	Status     BorrowStatus `json:"status"`
}

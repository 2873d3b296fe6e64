package postgresengine

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/libraryops/circulation-go/circulation"
)

const (
	colBorrowBookID = "book_id"
	colBorrowUserID = "user_id"
	colBorrowDate   = "borrow_date"
	colReturnDate   = "return_date"

	aliasBookTitle  = "book_title"
	aliasBookAuthor = "book_author"

	actionLedgerOpenEntries = "ledger open entries"
	actionLedgerCreate      = "ledger create"
	actionLedgerClose       = "ledger close"
	actionLedgerGet         = "ledger get"
	actionLedgerPurge       = "ledger purge"
	actionLedgerList        = "ledger list"

	exprNow = "now()"
)

var borrowColumns = []any{colID, colBorrowBookID, colBorrowUserID, colBorrowDate, colReturnDate, colStatus}

// OpenEntries returns the ledger entries with status "borrowed" for the
// book. Under the circulation invariant the result has length 0 or 1, but
// the query itself does not enforce uniqueness - that is the Coordinator's
// job.
func (s Store) OpenEntries(ctx context.Context, bookID int64) ([]circulation.BorrowRecord, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(s.borrowsTable).
		Select(borrowColumns...).
		Where(
			goqu.C(colBorrowBookID).Eq(bookID),
			goqu.C(colStatus).Eq(string(circulation.BorrowOpen)),
		).
		Order(goqu.C(colID).Asc()).
		ToSQL()
	if buildErr != nil {
		return nil, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionLedgerOpenEntries)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	entries := make([]circulation.BorrowRecord, 0)

	for rows.Next() {
		record, scanErr := s.scanBorrowRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		entries = append(entries, record)
	}

	return entries, nil
}

// Create appends a new open ledger entry with the borrow date set by the
// database clock.
func (s Store) Create(ctx context.Context, bookID int64, userID int64) (circulation.BorrowRecord, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Insert(s.borrowsTable).
		Rows(goqu.Record{
			colBorrowBookID: bookID,
			colBorrowUserID: userID,
			colBorrowDate:   goqu.L(exprNow),
			colStatus:       string(circulation.BorrowOpen),
		}).
		Returning(borrowColumns...).
		ToSQL()
	if buildErr != nil {
		return circulation.BorrowRecord{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBorrowRecord(ctx, sqlQuery, actionLedgerCreate, nil)
}

// Close transitions an open ledger entry to "returned" and stamps the
// return date. Closing a record that does not exist or is already closed
// fails, it is never silently accepted.
func (s Store) Close(ctx context.Context, recordID int64) (circulation.BorrowRecord, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(s.borrowsTable).
		Set(goqu.Record{
			colReturnDate: goqu.L(exprNow),
			colStatus:     string(circulation.BorrowReturned),
		}).
		Where(
			goqu.C(colID).Eq(recordID),
			goqu.C(colStatus).Eq(string(circulation.BorrowOpen)),
		).
		Returning(borrowColumns...).
		ToSQL()
	if buildErr != nil {
		return circulation.BorrowRecord{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBorrowRecord(ctx, sqlQuery, actionLedgerClose, circulation.ErrBorrowNotFound)
}

// GetEntryForUpdate returns the ledger entry with its row locked for the
// remainder of the surrounding transaction.
func (s Store) GetEntryForUpdate(ctx context.Context, recordID int64) (circulation.BorrowRecord, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(s.borrowsTable).
		Select(borrowColumns...).
		Where(goqu.C(colID).Eq(recordID)).
		ForUpdate(exp.Wait).
		ToSQL()
	if buildErr != nil {
		return circulation.BorrowRecord{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBorrowRecord(ctx, sqlQuery, actionLedgerGet, circulation.ErrBorrowNotFound)
}

// PurgeForBook deletes the book's entire ledger history and reports how
// many entries went away. Only called when no open entry exists.
func (s Store) PurgeForBook(ctx context.Context, bookID int64) (int64, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Delete(s.borrowsTable).
		Where(goqu.C(colBorrowBookID).Eq(bookID)).
		ToSQL()
	if buildErr != nil {
		return 0, s.buildQueryError(buildErr)
	}

	return s.executeExec(ctx, sqlQuery, actionLedgerPurge)
}

// ListAll returns the full ledger joined with book and user attributes,
// ordered by entry id.
func (s Store) ListAll(ctx context.Context) ([]circulation.BorrowRecord, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(goqu.T(s.borrowsTable).As("br")).
		Join(goqu.T(s.booksTable).As("b"), goqu.On(goqu.I("b."+colID).Eq(goqu.I("br."+colBorrowBookID)))).
		Join(goqu.T(s.usersTable).As("u"), goqu.On(goqu.I("u."+colID).Eq(goqu.I("br."+colBorrowUserID)))).
		Select(
			goqu.I("br."+colID), goqu.I("br."+colBorrowBookID), goqu.I("br."+colBorrowUserID),
			goqu.I("br."+colBorrowDate), goqu.I("br."+colReturnDate), goqu.I("br."+colStatus),
			goqu.I("b."+colTitle).As(aliasBookTitle), goqu.I("b."+colAuthor).As(aliasBookAuthor),
			goqu.I("u."+colUsername),
		).
		Order(goqu.I("br." + colID).Asc()).
		ToSQL()
	if buildErr != nil {
		return nil, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionLedgerList)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	records := make([]circulation.BorrowRecord, 0)

	for rows.Next() {
		var record circulation.BorrowRecord
		var returnDate sql.NullTime

		scanErr := rows.Scan(
			&record.ID, &record.BookID, &record.UserID,
			&record.BorrowDate, &returnDate, &record.Status,
			&record.BookTitle, &record.BookAuthor, &record.Username,
		)
		if scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		if returnDate.Valid {
			record.ReturnDate = &returnDate.Time
		}

		records = append(records, record)
	}

	return records, nil
}

// ListForUser returns the user's loans joined with their books, restricted
// to open entries when openOnly is set.
func (s Store) ListForUser(ctx context.Context, userID int64, openOnly bool) ([]circulation.UserLoan, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(s.borrowsTable).As("br")).
		Join(goqu.T(s.booksTable).As("b"), goqu.On(goqu.I("b."+colID).Eq(goqu.I("br."+colBorrowBookID)))).
		Select(
			goqu.I("br."+colID), goqu.I("b."+colID), goqu.I("b."+colTitle), goqu.I("b."+colAuthor),
			goqu.I("br."+colBorrowDate), goqu.I("br."+colStatus),
		).
		Where(goqu.I("br." + colBorrowUserID).Eq(userID)).
		Order(goqu.I("br." + colID).Asc())

	if openOnly {
		selectStmt = selectStmt.Where(goqu.I("br." + colStatus).Eq(string(circulation.BorrowOpen)))
	}

	sqlQuery, _, buildErr := selectStmt.ToSQL()
	if buildErr != nil {
		return nil, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionLedgerList)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	loans := make([]circulation.UserLoan, 0)

	for rows.Next() {
		var loan circulation.UserLoan

		scanErr := rows.Scan(&loan.BorrowID, &loan.BookID, &loan.Title, &loan.Author, &loan.BorrowDate, &loan.Status)
		if scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		loans = append(loans, loan)
	}

	return loans, nil
}

func (s Store) querySingleBorrowRecord(ctx context.Context, sqlQuery string, action string, noRowErr error) (circulation.BorrowRecord, error) {
	rows, queryErr := s.executeQuery(ctx, sqlQuery, action)
	if queryErr != nil {
		return circulation.BorrowRecord{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if noRowErr != nil {
			return circulation.BorrowRecord{}, noRowErr
		}

		return circulation.BorrowRecord{}, s.scanError(errNoRowReturned)
	}

	return s.scanBorrowRecord(rows)
}

func (s Store) scanBorrowRecord(rows interface{ Scan(dest ...any) error }) (circulation.BorrowRecord, error) {
	var record circulation.BorrowRecord
	var returnDate sql.NullTime

	scanErr := rows.Scan(&record.ID, &record.BookID, &record.UserID, &record.BorrowDate, &returnDate, &record.Status)
	if scanErr != nil {
		return circulation.BorrowRecord{}, s.scanError(scanErr)
	}

	if returnDate.Valid {
		record.ReturnDate = &returnDate.Time
	}

	return record, nil
}

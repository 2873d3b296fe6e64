package postgresengine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/libraryops/circulation-go/circulation"
)

const (
	colID          = "id"
	colTitle       = "title"
	colAuthor      = "author"
	colPublishDate = "publish_date"
	colQuantity    = "quantity"
	colStatus      = "status"
	colFileKey     = "file_key"

	aliasBorrowedBy     = "borrowed_by"
	aliasActiveBorrowID = "active_borrow_id"

	actionCatalogFind      = "catalog find"
	actionCatalogAdd       = "catalog add"
	actionCatalogGet       = "catalog get"
	actionCatalogUpdate    = "catalog update"
	actionCatalogRemove    = "catalog remove"
	actionCatalogSetStatus = "catalog set status"
	actionCatalogFileKey   = "catalog file key"
)

var bookColumns = []any{colID, colTitle, colAuthor, colPublishDate, colQuantity, colStatus, colFileKey}

// Add inserts a new catalog entry. Status defaults to available; an absent
// or negative quantity coerces to 0 per the catalog-add contract.
func (s Store) Add(ctx context.Context, fields circulation.BookFields) (circulation.Book, error) {
	record := goqu.Record{
		colTitle:    fields.Title,
		colAuthor:   fields.Author,
		colQuantity: fields.NormalizedQuantity(),
		colStatus:   string(circulation.StatusAvailable),
	}

	if fields.PublishDate != nil {
		record[colPublishDate] = *fields.PublishDate
	}

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Insert(s.booksTable).
		Rows(record).
		Returning(bookColumns...).
		ToSQL()
	if buildErr != nil {
		return circulation.Book{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBook(ctx, sqlQuery, actionCatalogAdd, nil)
}

// Update replaces the mutable attributes of a catalog entry. The
// availability flag is deliberately not part of the update set: only the
// Coordinator's circulation operations may touch it.
func (s Store) Update(ctx context.Context, id int64, fields circulation.BookFields) (circulation.Book, error) {
	if err := fields.ValidateForUpdate(); err != nil {
		return circulation.Book{}, err
	}

	record := goqu.Record{
		colTitle:    fields.Title,
		colAuthor:   fields.Author,
		colQuantity: *fields.Quantity,
	}

	if fields.PublishDate != nil {
		record[colPublishDate] = *fields.PublishDate
	} else {
		record[colPublishDate] = nil
	}

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(s.booksTable).
		Set(record).
		Where(goqu.C(colID).Eq(id)).
		Returning(bookColumns...).
		ToSQL()
	if buildErr != nil {
		return circulation.Book{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBook(ctx, sqlQuery, actionCatalogUpdate, circulation.ErrBookNotFound)
}

// Remove deletes the catalog row. Ledger history is purged by the
// Coordinator before this is called.
func (s Store) Remove(ctx context.Context, id int64) error {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Delete(s.booksTable).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if buildErr != nil {
		return s.buildQueryError(buildErr)
	}

	rowsAffected, execErr := s.executeExec(ctx, sqlQuery, actionCatalogRemove)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrBookNotFound
	}

	return nil
}

// Find returns catalog entries ordered by id, each left-joined with its
// open borrow record. A non-empty query filters by case-insensitive
// substring match on title or author.
func (s Store) Find(ctx context.Context, query string) ([]circulation.Book, error) {
	sqlQuery, buildErr := s.buildFindQuery(query)
	if buildErr != nil {
		return nil, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionCatalogFind)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	books := make([]circulation.Book, 0)

	for rows.Next() {
		var book circulation.Book
		var publishDate sql.NullTime
		var fileKey sql.NullString
		var borrowedBy, activeBorrowID sql.NullInt64

		scanErr := rows.Scan(
			&book.ID, &book.Title, &book.Author, &publishDate,
			&book.Quantity, &book.Status, &fileKey,
			&borrowedBy, &activeBorrowID,
		)
		if scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		if publishDate.Valid {
			book.PublishDate = &publishDate.Time
		}
		book.FileKey = fileKey.String
		if borrowedBy.Valid {
			book.BorrowedBy = &borrowedBy.Int64
		}
		if activeBorrowID.Valid {
			book.ActiveBorrowID = &activeBorrowID.Int64
		}

		books = append(books, book)
	}

	return books, nil
}

// Get returns the catalog entry without locking it.
func (s Store) Get(ctx context.Context, id int64) (circulation.Book, error) {
	sqlQuery, buildErr := s.buildGetQuery(id, false)
	if buildErr != nil {
		return circulation.Book{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBook(ctx, sqlQuery, actionCatalogGet, circulation.ErrBookNotFound)
}

// GetForUpdate returns the catalog entry with its row locked for the
// remainder of the surrounding transaction.
func (s Store) GetForUpdate(ctx context.Context, id int64) (circulation.Book, error) {
	sqlQuery, buildErr := s.buildGetQuery(id, true)
	if buildErr != nil {
		return circulation.Book{}, s.buildQueryError(buildErr)
	}

	return s.querySingleBook(ctx, sqlQuery, actionCatalogGet, circulation.ErrBookNotFound)
}

// SetStatus flips the denormalized availability flag. Callers must hold the
// row lock of the same transaction that writes the ledger.
func (s Store) SetStatus(ctx context.Context, id int64, status circulation.BookStatus) error {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(s.booksTable).
		Set(goqu.Record{colStatus: string(status)}).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if buildErr != nil {
		return s.buildQueryError(buildErr)
	}

	rowsAffected, execErr := s.executeExec(ctx, sqlQuery, actionCatalogSetStatus)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrBookNotFound
	}

	return nil
}

// AttachmentKey returns the current object key of the book's attachment, or
// an empty string when no attachment was ever uploaded.
func (s Store) AttachmentKey(ctx context.Context, id int64) (string, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(s.booksTable).
		Select(colFileKey).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if buildErr != nil {
		return "", s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionCatalogFileKey)
	if queryErr != nil {
		return "", queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return "", circulation.ErrBookNotFound
	}

	var fileKey sql.NullString
	if scanErr := rows.Scan(&fileKey); scanErr != nil {
		return "", s.scanError(scanErr)
	}

	return fileKey.String, nil
}

// SetAttachmentKey repoints the book's attachment reference to a new object
// key, orphaning the previous blob.
func (s Store) SetAttachmentKey(ctx context.Context, id int64, key string) error {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(s.booksTable).
		Set(goqu.Record{colFileKey: key}).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if buildErr != nil {
		return s.buildQueryError(buildErr)
	}

	rowsAffected, execErr := s.executeExec(ctx, sqlQuery, actionCatalogFileKey)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrBookNotFound
	}

	return nil
}

func (s Store) buildFindQuery(query string) (string, error) {
	aliasedBookColumns := []any{
		goqu.I("b." + colID), goqu.I("b." + colTitle), goqu.I("b." + colAuthor),
		goqu.I("b." + colPublishDate), goqu.I("b." + colQuantity),
		goqu.I("b." + colStatus), goqu.I("b." + colFileKey),
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(s.booksTable).As("b")).
		LeftJoin(
			goqu.T(s.borrowsTable).As("br"),
			goqu.On(
				goqu.I("br."+colBorrowBookID).Eq(goqu.I("b."+colID)),
				goqu.I("br."+colStatus).Eq(string(circulation.BorrowOpen)),
			),
		).
		Select(append(
			aliasedBookColumns,
			goqu.I("br."+colBorrowUserID).As(aliasBorrowedBy),
			goqu.I("br."+colID).As(aliasActiveBorrowID),
		)...).
		Order(goqu.I("b." + colID).Asc())

	if query != "" {
		pattern := "%" + query + "%"
		selectStmt = selectStmt.Where(goqu.Or(
			goqu.I("b."+colTitle).ILike(pattern),
			goqu.I("b."+colAuthor).ILike(pattern),
		))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()

	return sqlQuery, toSQLErr
}

func (s Store) buildGetQuery(id int64, forUpdate bool) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.booksTable).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(id))

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()

	return sqlQuery, toSQLErr
}

// querySingleBook runs a statement expected to yield at most one book row.
// When no row comes back, noRowErr is returned if non-nil (absent row is a
// store failure otherwise, e.g. for inserts).
func (s Store) querySingleBook(ctx context.Context, sqlQuery string, action string, noRowErr error) (circulation.Book, error) {
	rows, queryErr := s.executeQuery(ctx, sqlQuery, action)
	if queryErr != nil {
		return circulation.Book{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if noRowErr != nil {
			return circulation.Book{}, noRowErr
		}

		return circulation.Book{}, errors.Join(circulation.ErrStore, errNoRowReturned)
	}

	var book circulation.Book
	var publishDate sql.NullTime
	var fileKey sql.NullString

	scanErr := rows.Scan(&book.ID, &book.Title, &book.Author, &publishDate, &book.Quantity, &book.Status, &fileKey)
	if scanErr != nil {
		return circulation.Book{}, s.scanError(scanErr)
	}

	if publishDate.Valid {
		book.PublishDate = &publishDate.Time
	}
	book.FileKey = fileKey.String

	return book, nil
}

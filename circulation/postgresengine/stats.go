package postgresengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/libraryops/circulation-go/circulation"
)

const actionStats = "stats"

// Stats is the dashboard aggregate: catalog size, directory size, and the
// borrowed/available split derived from the book status flags.
type Stats struct {
	Books     int64 `json:"books"`
	Users     int64 `json:"users"`
	Borrowed  int64 `json:"borrowed"`
	InLibrary int64 `json:"inLibrary"`
}

// Stats computes the dashboard aggregate with one query per table.
func (s Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	bookQuery, _, bookBuildErr := goqu.Dialect(dialectPostgres).
		From(s.booksTable).
		Select(
			goqu.COUNT(goqu.Star()),
			goqu.L("count(*) filter (where ? = ?)", goqu.C(colStatus), string(circulation.StatusBorrowed)),
			goqu.L("count(*) filter (where ? = ?)", goqu.C(colStatus), string(circulation.StatusAvailable)),
		).
		ToSQL()
	if bookBuildErr != nil {
		return Stats{}, s.buildQueryError(bookBuildErr)
	}

	bookRows, bookQueryErr := s.executeQuery(ctx, bookQuery, actionStats)
	if bookQueryErr != nil {
		return Stats{}, bookQueryErr
	}
	defer s.closeRows(bookRows)

	if bookRows.Next() {
		if scanErr := bookRows.Scan(&stats.Books, &stats.Borrowed, &stats.InLibrary); scanErr != nil {
			return Stats{}, s.scanError(scanErr)
		}
	}

	userQuery, _, userBuildErr := goqu.Dialect(dialectPostgres).
		From(s.usersTable).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if userBuildErr != nil {
		return Stats{}, s.buildQueryError(userBuildErr)
	}

	userRows, userQueryErr := s.executeQuery(ctx, userQuery, actionStats)
	if userQueryErr != nil {
		return Stats{}, userQueryErr
	}
	defer s.closeRows(userRows)

	if userRows.Next() {
		if scanErr := userRows.Scan(&stats.Users); scanErr != nil {
			return Stats{}, s.scanError(scanErr)
		}
	}

	return stats, nil
}

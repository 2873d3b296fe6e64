package postgresengine

import (
	"context"
	"fmt"
)

const actionMigrate = "migrate"

// Migrate applies the circulation schema, creating the books, users, and
// borrow tables plus the supporting indexes when they do not exist yet.
func (s Store) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			publish_date DATE,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			status TEXT NOT NULL DEFAULT 'available',
			file_key TEXT
		)`, s.booksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user'
		)`, s.usersTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			book_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			borrow_date TIMESTAMPTZ NOT NULL DEFAULT now(),
			return_date TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'borrowed'
		)`, s.borrowsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_book_open ON %s (book_id) WHERE status = 'borrowed'`,
			s.borrowsTable, s.borrowsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)`,
			s.borrowsTable, s.borrowsTable),
	}

	for _, statement := range statements {
		if _, execErr := s.executeExec(ctx, statement, actionMigrate); execErr != nil {
			return execErr
		}
	}

	return nil
}

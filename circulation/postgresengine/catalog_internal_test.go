package postgresengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuilderTestStore() Store {
	return Store{
		booksTable:   defaultBooksTableName,
		usersTable:   defaultUsersTableName,
		borrowsTable: defaultBorrowsTableName,
	}
}

func Test_BuildGetQuery_PlainRead(t *testing.T) {
	store := newBuilderTestStore()

	sqlQuery, err := store.buildGetQuery(42, false)

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "books"`)
	assert.Contains(t, sqlQuery, `"id" = 42`)
	assert.NotContains(t, sqlQuery, "FOR UPDATE")
}

func Test_BuildGetQuery_ForUpdate_LocksRow(t *testing.T) {
	store := newBuilderTestStore()

	sqlQuery, err := store.buildGetQuery(42, true)

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, "FOR UPDATE")
}

func Test_BuildFindQuery_JoinsOpenBorrow(t *testing.T) {
	store := newBuilderTestStore()

	sqlQuery, err := store.buildFindQuery("")

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `LEFT JOIN "borrow" AS "br"`)
	assert.Contains(t, sqlQuery, `"br"."status" = 'borrowed'`)
	assert.Contains(t, sqlQuery, `AS "borrowed_by"`)
	assert.Contains(t, sqlQuery, `AS "active_borrow_id"`)
	assert.Contains(t, sqlQuery, `ORDER BY "b"."id" ASC`)
	assert.NotContains(t, sqlQuery, "ILIKE", "an empty query must not filter")
}

func Test_BuildFindQuery_FiltersTitleAndAuthor(t *testing.T) {
	store := newBuilderTestStore()

	sqlQuery, err := store.buildFindQuery("dune")

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"b"."title" ILIKE '%dune%'`)
	assert.Contains(t, sqlQuery, `"b"."author" ILIKE '%dune%'`)
}

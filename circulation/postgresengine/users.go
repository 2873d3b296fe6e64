package postgresengine

import (
	"context"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/libraryops/circulation-go/circulation"
)

const (
	colUsername = "username"
	colPassword = "password"
	colRole     = "role"

	actionUserExists = "user exists"
	actionUserGet    = "user get"
	actionUserInsert = "user insert"
	actionUserUpdate = "user update"
	actionUserDelete = "user delete"
	actionUserFind   = "user find"

	// defaultInitialPassword is assigned to administratively created users,
	// who are expected to change it on first login.
	defaultInitialPassword = "123456"
)

var userColumns = []any{colID, colUsername, colRole}

// Exists reports whether a user with the given id is present in the
// directory. This is the lookup the Coordinator consumes before lending.
func (s Store) Exists(ctx context.Context, userID int64) (bool, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(s.usersTable).
		Select(colID).
		Where(goqu.C(colID).Eq(userID)).
		ToSQL()
	if buildErr != nil {
		return false, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionUserExists)
	if queryErr != nil {
		return false, queryErr
	}
	defer s.closeRows(rows)

	return rows.Next(), nil
}

// Register creates a self-service account with role "user". The password is
// stored only as a bcrypt hash.
func (s Store) Register(ctx context.Context, username string, password string) (circulation.User, error) {
	if strings.TrimSpace(username) == "" {
		return circulation.User{}, circulation.ErrMissingUsername
	}

	if len(password) < circulation.MinPasswordLength {
		return circulation.User{}, circulation.ErrPasswordTooShort
	}

	taken, lookupErr := s.usernameTaken(ctx, username)
	if lookupErr != nil {
		return circulation.User{}, lookupErr
	}

	if taken {
		return circulation.User{}, circulation.ErrUsernameTaken
	}

	return s.insertUser(ctx, username, password, circulation.RoleUser)
}

// CreateUser adds a directory entry administratively with the given role
// and the default initial password.
func (s Store) CreateUser(ctx context.Context, username string, role circulation.Role) (circulation.User, error) {
	if strings.TrimSpace(username) == "" {
		return circulation.User{}, circulation.ErrMissingUsername
	}

	taken, lookupErr := s.usernameTaken(ctx, username)
	if lookupErr != nil {
		return circulation.User{}, lookupErr
	}

	if taken {
		return circulation.User{}, circulation.ErrUsernameTaken
	}

	return s.insertUser(ctx, username, defaultInitialPassword, role)
}

// Authenticate verifies the credentials and returns the directory entry.
// The stored hash never leaves this method; username lookup misses and hash
// mismatches are indistinguishable to the caller.
func (s Store) Authenticate(ctx context.Context, username string, password string) (circulation.User, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(s.usersTable).
		Select(colID, colUsername, colRole, colPassword).
		Where(goqu.C(colUsername).Eq(username)).
		ToSQL()
	if buildErr != nil {
		return circulation.User{}, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionUserGet)
	if queryErr != nil {
		return circulation.User{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return circulation.User{}, circulation.ErrInvalidCredentials
	}

	var user circulation.User
	var passwordHash string

	if scanErr := rows.Scan(&user.ID, &user.Username, &user.Role, &passwordHash); scanErr != nil {
		return circulation.User{}, s.scanError(scanErr)
	}

	if compareErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); compareErr != nil {
		return circulation.User{}, circulation.ErrInvalidCredentials
	}

	return user, nil
}

// FindUsers returns directory entries, filtered by a case-insensitive
// username substring and/or an exact role when supplied.
func (s Store) FindUsers(ctx context.Context, query string, role string) ([]circulation.User, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.usersTable).
		Select(userColumns...).
		Order(goqu.C(colID).Asc())

	if query != "" {
		selectStmt = selectStmt.Where(goqu.C(colUsername).ILike("%" + query + "%"))
	}

	if role != "" {
		selectStmt = selectStmt.Where(goqu.C(colRole).Eq(role))
	}

	sqlQuery, _, buildErr := selectStmt.ToSQL()
	if buildErr != nil {
		return nil, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionUserFind)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	users := make([]circulation.User, 0)

	for rows.Next() {
		var user circulation.User

		if scanErr := rows.Scan(&user.ID, &user.Username, &user.Role); scanErr != nil {
			return nil, s.scanError(scanErr)
		}

		users = append(users, user)
	}

	return users, nil
}

// UpdateUser replaces username and role of a directory entry.
func (s Store) UpdateUser(ctx context.Context, id int64, username string, role circulation.Role) (circulation.User, error) {
	if strings.TrimSpace(username) == "" {
		return circulation.User{}, circulation.ErrMissingUsername
	}

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(s.usersTable).
		Set(goqu.Record{colUsername: username, colRole: string(role)}).
		Where(goqu.C(colID).Eq(id)).
		Returning(userColumns...).
		ToSQL()
	if buildErr != nil {
		return circulation.User{}, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionUserUpdate)
	if queryErr != nil {
		return circulation.User{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return circulation.User{}, circulation.ErrUserNotFound
	}

	var user circulation.User

	if scanErr := rows.Scan(&user.ID, &user.Username, &user.Role); scanErr != nil {
		return circulation.User{}, s.scanError(scanErr)
	}

	return user, nil
}

// SetPassword rehashes and replaces the user's password.
func (s Store) SetPassword(ctx context.Context, id int64, password string) error {
	if len(password) < circulation.MinPasswordLength {
		return circulation.ErrPasswordTooShort
	}

	passwordHash, hashErr := s.hashPassword(password)
	if hashErr != nil {
		return hashErr
	}

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(s.usersTable).
		Set(goqu.Record{colPassword: passwordHash}).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if buildErr != nil {
		return s.buildQueryError(buildErr)
	}

	rowsAffected, execErr := s.executeExec(ctx, sqlQuery, actionUserUpdate)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrUserNotFound
	}

	return nil
}

// DeleteUser removes the directory entry. Ledger rows keep the user id for
// history; they are deliberately not touched.
func (s Store) DeleteUser(ctx context.Context, id int64) error {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Delete(s.usersTable).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if buildErr != nil {
		return s.buildQueryError(buildErr)
	}

	rowsAffected, execErr := s.executeExec(ctx, sqlQuery, actionUserDelete)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrUserNotFound
	}

	return nil
}

func (s Store) usernameTaken(ctx context.Context, username string) (bool, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(s.usersTable).
		Select(colID).
		Where(goqu.C(colUsername).Eq(username)).
		ToSQL()
	if buildErr != nil {
		return false, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionUserExists)
	if queryErr != nil {
		return false, queryErr
	}
	defer s.closeRows(rows)

	return rows.Next(), nil
}

func (s Store) insertUser(ctx context.Context, username string, password string, role circulation.Role) (circulation.User, error) {
	passwordHash, hashErr := s.hashPassword(password)
	if hashErr != nil {
		return circulation.User{}, hashErr
	}

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Insert(s.usersTable).
		Rows(goqu.Record{
			colUsername: username,
			colPassword: passwordHash,
			colRole:     string(role),
		}).
		Returning(userColumns...).
		ToSQL()
	if buildErr != nil {
		return circulation.User{}, s.buildQueryError(buildErr)
	}

	rows, queryErr := s.executeQuery(ctx, sqlQuery, actionUserInsert)
	if queryErr != nil {
		return circulation.User{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return circulation.User{}, s.scanError(errNoRowReturned)
	}

	var user circulation.User

	if scanErr := rows.Scan(&user.ID, &user.Username, &user.Role); scanErr != nil {
		return circulation.User{}, s.scanError(scanErr)
	}

	return user, nil
}

func (s Store) hashPassword(password string) (string, error) {
	cost := s.bcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), cost)
	if hashErr != nil {
		return "", errors.Join(circulation.ErrStore, hashErr)
	}

	return string(hash), nil
}
